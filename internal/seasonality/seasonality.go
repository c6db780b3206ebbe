// Package seasonality builds calendar-day seasonality profiles from daily
// price series: the average return observed on each day of the year,
// compounded into an index that starts at 100 on 1 January.
package seasonality

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/seenimoa/cotscope/pkg/models"
	"github.com/seenimoa/cotscope/pkg/utils"
)

// Defaults used when the corresponding Params field is zero.
const (
	DefaultLookbackYears  = 10
	DefaultMaxWindowYears = 15
	DefaultMinCandles     = 50
)

// DaysInYear is the length of the profile. Feb 29 has no slot.
const DaysInYear = 365

// ErrInsufficientData is returned when the series is too short to be meaningful.
var ErrInsufficientData = errors.New("insufficient data")

var monthLengths = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// monthStarts[m] is the day-of-year index of the first day of month m (0-based).
var monthStarts = func() [12]int {
	var s [12]int
	for m := 1; m < 12; m++ {
		s[m] = s[m-1] + monthLengths[m-1]
	}
	return s
}()

// Cycle selects years by their position in the US presidential election cycle.
type Cycle string

const (
	CycleAll      Cycle = "all"
	CycleElection Cycle = "election" // year % 4 == 0
	CyclePost     Cycle = "post"     // year % 4 == 1
	CycleMidterm  Cycle = "midterm"  // year % 4 == 2
	CyclePre      Cycle = "pre"      // year % 4 == 3
)

// ParseCycle accepts the cycle names case-insensitively. Empty means all.
func ParseCycle(s string) (Cycle, error) {
	switch c := Cycle(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return CycleAll, nil
	case CycleAll, CycleElection, CyclePost, CycleMidterm, CyclePre:
		return c, nil
	default:
		return "", fmt.Errorf("unknown cycle %q (want all, pre, election, post or midterm)", s)
	}
}

// CycleOf returns the election-cycle bucket of a calendar year.
func CycleOf(year int) Cycle {
	switch ((year % 4) + 4) % 4 {
	case 0:
		return CycleElection
	case 1:
		return CyclePost
	case 2:
		return CycleMidterm
	default:
		return CyclePre
	}
}

// Params controls windowing and filtering.
type Params struct {
	LookbackYears int
	Cycle         Cycle
	// Start and End clip the series explicitly. Zero values mean unset.
	Start time.Time
	End   time.Time

	MaxWindowYears int
	MinCandles     int
}

func (p Params) withDefaults() Params {
	if p.LookbackYears <= 0 {
		p.LookbackYears = DefaultLookbackYears
	}
	if p.Cycle == "" {
		p.Cycle = CycleAll
	}
	if p.MaxWindowYears <= 0 {
		p.MaxWindowYears = DefaultMaxWindowYears
	}
	if p.MinCandles <= 0 {
		p.MinCandles = DefaultMinCandles
	}
	return p
}

// DayIndex maps t to its slot in 0..364 using a non-leap calendar.
// ok is false for Feb 29.
func DayIndex(t time.Time) (idx int, ok bool) {
	m, d := t.Month(), t.Day()
	if m == time.February && d == 29 {
		return 0, false
	}
	return monthStarts[m-1] + d - 1, true
}

// Compute builds the seasonality profile of candles. Input order does not
// matter. now anchors the default lookback window.
func Compute(candles []models.Candle, p Params, now time.Time) (*models.SeasonalityResult, error) {
	p = p.withDefaults()
	if len(candles) < p.MinCandles {
		return nil, fmt.Errorf("%w: %d candles, need %d", ErrInsufficientData, len(candles), p.MinCandles)
	}

	sorted := make([]models.Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	start, end, inclusiveStart := window(sorted, p, now)
	var windowed []models.Candle
	for _, c := range sorted {
		t := c.UTC()
		if t.After(end) || t.Before(start) || (!inclusiveStart && t.Equal(start)) {
			continue
		}
		windowed = append(windowed, c)
	}

	windowed = filterCycle(windowed, p.Cycle)
	if len(windowed) == 0 {
		return nil, fmt.Errorf("%w: no candles between %s and %s", ErrInsufficientData,
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	res := &models.SeasonalityResult{
		MonthStartIndices: monthStarts,
		CandlesUsed:       len(windowed),
		WindowStart:       start,
		WindowEnd:         end,
	}

	byYear := splitYears(windowed)
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)
	res.YearsUsed = years

	res.DailySeasonality = dailyIndex(byYear)
	res.WeekdayReturns = weekdayReturns(windowed)
	res.MonthlyReturns = monthlyReturns(byYear)
	return res, nil
}

// window resolves the date range to analyse. Explicit bounds are capped to
// MaxWindowYears; without them the last LookbackYears up to the latest
// candle at or before now are used.
func window(sorted []models.Candle, p Params, now time.Time) (start, end time.Time, inclusiveStart bool) {
	latest := sorted[len(sorted)-1].UTC()
	maxYears := p.MaxWindowYears

	switch {
	case !p.Start.IsZero() && !p.End.IsZero():
		start, end = p.Start.UTC(), p.End.UTC()
		if floor := utils.AddYears(end, -maxYears); start.Before(floor) {
			start = floor
		}
		return start, end, true

	case !p.Start.IsZero():
		end = latest
		start = p.Start.UTC()
		if floor := utils.AddYears(end, -maxYears); start.Before(floor) {
			start = floor
		}
		return start, end, true

	case !p.End.IsZero():
		end = p.End.UTC()
		anchor := latestAtOrBefore(sorted, end, latest)
		return utils.AddYears(anchor, -maxYears), end, true

	default:
		end = latestAtOrBefore(sorted, now.UTC(), latest)
		return utils.AddYears(end, -p.LookbackYears), end, false
	}
}

func latestAtOrBefore(sorted []models.Candle, t, fallback time.Time) time.Time {
	i := sort.Search(len(sorted), func(i int) bool { return sorted[i].UTC().After(t) })
	if i == 0 {
		return fallback
	}
	return sorted[i-1].UTC()
}

// filterCycle keeps only years in the requested cycle bucket. When no year
// matches, the candles are returned unfiltered.
func filterCycle(candles []models.Candle, cycle Cycle) []models.Candle {
	if cycle == CycleAll {
		return candles
	}
	var kept []models.Candle
	for _, c := range candles {
		if CycleOf(c.UTC().Year()) == cycle {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return candles
	}
	return kept
}

func splitYears(candles []models.Candle) map[int][]models.Candle {
	out := make(map[int][]models.Candle)
	for _, c := range candles {
		y := c.UTC().Year()
		out[y] = append(out[y], c)
	}
	return out
}

// dailyIndex averages close-to-close returns per day of year across years
// and compounds them from 100. Returns never span a year boundary.
func dailyIndex(byYear map[int][]models.Candle) [DaysInYear]float64 {
	var sum [DaysInYear]float64
	var n [DaysInYear]int

	for _, candles := range byYear {
		for i := 1; i < len(candles); i++ {
			idx, ok := DayIndex(candles[i].UTC())
			if !ok {
				continue
			}
			prev := candles[i-1].Close
			if prev == 0 {
				continue
			}
			sum[idx] += candles[i].Close/prev - 1
			n[idx]++
		}
	}

	var out [DaysInYear]float64
	out[0] = 100
	for i := 1; i < DaysInYear; i++ {
		var avg float64
		if n[i] > 0 {
			avg = sum[i] / float64(n[i])
		}
		out[i] = out[i-1] * (1 + avg)
	}
	return out
}

// weekdayReturns averages same-day (close-open)/open by weekday, Mon..Fri.
func weekdayReturns(candles []models.Candle) [5]float64 {
	var sum [5]float64
	var n [5]int
	for _, c := range candles {
		wd := c.UTC().Weekday()
		if wd == time.Saturday || wd == time.Sunday || c.Open == 0 {
			continue
		}
		sum[wd-1] += (c.Close - c.Open) / c.Open
		n[wd-1]++
	}
	var out [5]float64
	for i := range out {
		if n[i] > 0 {
			out[i] = sum[i] / float64(n[i])
		}
	}
	return out
}

// monthlyReturns averages, per calendar month, the return from the month's
// first open to its last close.
func monthlyReturns(byYear map[int][]models.Candle) [12]float64 {
	var sum [12]float64
	var n [12]int
	for _, candles := range byYear {
		var first, last [12]*models.Candle
		for i := range candles {
			m := candles[i].UTC().Month() - 1
			if first[m] == nil {
				first[m] = &candles[i]
			}
			last[m] = &candles[i]
		}
		for m := range first {
			if first[m] == nil || first[m].Open == 0 {
				continue
			}
			sum[m] += last[m].Close/first[m].Open - 1
			n[m]++
		}
	}
	var out [12]float64
	for m := range out {
		if n[m] > 0 {
			out[m] = sum[m] / float64(n[m])
		}
	}
	return out
}
