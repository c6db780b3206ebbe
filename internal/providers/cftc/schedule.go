package cftc

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/seenimoa/cotscope/internal/infra"
	"github.com/seenimoa/cotscope/internal/provider"
)

// ---- COTReleaseSchedule fetcher ----

type scheduleFetcher struct {
	provider.BaseFetcher
	p   *Provider
	now func() time.Time
}

func newScheduleFetcher(p *Provider) *scheduleFetcher {
	return &scheduleFetcher{
		BaseFetcher: provider.NewBaseFetcherWithOpts(
			provider.ModelCOTReleaseSchedule,
			"Upcoming COT release dates scraped from cftc.gov",
			nil,
			[]string{provider.ParamStartDate},
			12*time.Hour, 2, time.Second,
		),
		p:   p,
		now: time.Now,
	}
}

func (f *scheduleFetcher) Fetch(ctx context.Context, params provider.QueryParams) (*provider.FetchResult, error) {
	from := f.now().UTC()
	if s := params[provider.ParamStartDate]; s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, fmt.Errorf("cftc schedule: invalid start_date %q", s)
		}
		from = t
	}

	all, err := f.releases(ctx, from.Year())
	if err != nil {
		return nil, err
	}
	return newResult(Upcoming(all, from)), nil
}

// releases returns every release date on the schedule page. The parsed page
// is cached, the filtering is not.
func (f *scheduleFetcher) releases(ctx context.Context, fallbackYear int) ([]time.Time, error) {
	const cacheKey = "schedule"
	if cached, ok := f.CacheGet(cacheKey); ok {
		return cached.([]time.Time), nil
	}
	if err := f.RateLimit(ctx); err != nil {
		return nil, err
	}

	body, _, err := infra.DoGet(ctx, f.p.http, f.p.scheduleURL, map[string]string{"Accept": "text/html"})
	if err != nil {
		return nil, fmt.Errorf("cftc schedule: %w", err)
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse cftc schedule HTML: %w", err)
	}
	dates := ParseSchedule(doc, fallbackYear)
	if len(dates) == 0 {
		return nil, fmt.Errorf("cftc schedule: no release dates found at %s", f.p.scheduleURL)
	}

	f.CacheSet(cacheKey, dates)
	return dates, nil
}

// NextRelease returns the first scheduled release on or after now's date.
func (p *Provider) NextRelease(ctx context.Context, now time.Time) (time.Time, error) {
	f := p.Fetcher(provider.ModelCOTReleaseSchedule).(*scheduleFetcher)
	all, err := f.releases(ctx, now.Year())
	if err != nil {
		return time.Time{}, err
	}
	next := Upcoming(all, now)
	if len(next) == 0 {
		return time.Time{}, fmt.Errorf("cftc schedule: no release after %s", now.Format("2006-01-02"))
	}
	return next[0], nil
}

// Upcoming keeps the dates falling on or after from's calendar day.
func Upcoming(dates []time.Time, from time.Time) []time.Time {
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		if !d.Before(day) {
			out = append(out, d)
		}
	}
	return out
}

var (
	yearRe    = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	weekdayRe = regexp.MustCompile(`(?i)^(mon|tue|wed|thu|fri|sat|sun)[a-z]*\.?,?\s+`)
	trailerRe = regexp.MustCompile(`[^0-9A-Za-z]+$`)
)

var (
	layoutsWithYear = []string{"January 2, 2006", "January 2 2006", "Jan 2, 2006", "Jan. 2, 2006", "01/02/2006", "1/2/2006", "2006-01-02"}
	layoutsNoYear   = []string{"January 2", "Jan 2", "Jan. 2", "1/2"}
)

// ParseSchedule extracts release dates from the schedule page tables. When a
// table has a column headed "Release" only that column is read. Cells
// without a year take the year from the table caption or the nearest
// preceding heading, else fallbackYear. The result is sorted and distinct.
func ParseSchedule(doc *goquery.Document, fallbackYear int) []time.Time {
	seen := make(map[time.Time]struct{})
	var out []time.Time

	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		year := fallbackYear
		label := table.Find("caption").Text()
		if label == "" {
			label = table.PrevAllFiltered("h1, h2, h3, h4").First().Text()
		}
		if m := yearRe.FindString(label); m != "" {
			year, _ = strconv.Atoi(m)
		}

		releaseCol := -1
		table.Find("tr").First().Find("th, td").Each(func(i int, cell *goquery.Selection) {
			if releaseCol < 0 && strings.Contains(strings.ToLower(cell.Text()), "release") {
				releaseCol = i
			}
		})

		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			row.Find("td").Each(func(i int, cell *goquery.Selection) {
				if releaseCol >= 0 && i != releaseCol {
					return
				}
				d, ok := parseScheduleDate(cell.Text(), year)
				if !ok {
					return
				}
				if _, dup := seen[d]; !dup {
					seen[d] = struct{}{}
					out = append(out, d)
				}
			})
		})
	})

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func parseScheduleDate(text string, year int) (time.Time, bool) {
	s := strings.Join(strings.Fields(text), " ")
	s = weekdayRe.ReplaceAllString(s, "")
	s = trailerRe.ReplaceAllString(s, "")
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layoutsWithYear {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if year <= 0 {
		return time.Time{}, false
	}
	for _, layout := range layoutsNoYear {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(year, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
