package cftc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/seenimoa/cotscope/internal/infra"
	"github.com/seenimoa/cotscope/internal/provider"
	"github.com/seenimoa/cotscope/pkg/models"
	"github.com/seenimoa/cotscope/pkg/utils"
)

// Report-level query caps. A weekly legacy report has a few hundred rows.
const (
	DatesLimit     = 520
	ReportRowLimit = 5000
)

// ---- COTDates fetcher ----

type datesFetcher struct {
	provider.BaseFetcher
	p *Provider
}

func newDatesFetcher(p *Provider) *datesFetcher {
	return &datesFetcher{
		BaseFetcher: provider.NewBaseFetcherWithOpts(
			provider.ModelCOTDates,
			"Distinct report dates in the public dataset, newest first",
			nil, nil,
			30*time.Minute, 5, time.Second,
		),
		p: p,
	}
}

func (f *datesFetcher) Fetch(ctx context.Context, params provider.QueryParams) (*provider.FetchResult, error) {
	cacheKey := provider.CacheKey(f.ModelType(), params)
	if cached, ok := f.CacheGet(cacheKey); ok {
		return newCachedResult(cached), nil
	}
	if err := f.RateLimit(ctx); err != nil {
		return nil, err
	}

	soql := fmt.Sprintf("SELECT %[1]s GROUP BY %[1]s ORDER BY %[1]s DESC LIMIT %d", colReportDate, DatesLimit)
	var rows []map[string]string
	if err := infra.DoJSON(ctx, f.p.http, http.MethodGet, f.p.query(soql), nil, &rows, f.p.headers()); err != nil {
		return nil, fmt.Errorf("cftc dates: %w", err)
	}

	dates := make([]string, 0, len(rows))
	for _, r := range rows {
		if d := strings.TrimSpace(r[colReportDate]); d != "" {
			dates = append(dates, d)
		}
	}

	f.CacheSet(cacheKey, dates)
	return newResult(dates), nil
}

// ---- COTReport fetcher ----

type reportFetcher struct {
	provider.BaseFetcher
	p *Provider
}

func newReportFetcher(p *Provider) *reportFetcher {
	return &reportFetcher{
		BaseFetcher: provider.NewBaseFetcherWithOpts(
			provider.ModelCOTReport,
			"All legacy futures-only rows for one report date",
			[]string{provider.ParamReportDate},
			nil,
			30*time.Minute, 5, time.Second,
		),
		p: p,
	}
}

func (f *reportFetcher) Fetch(ctx context.Context, params provider.QueryParams) (*provider.FetchResult, error) {
	date := params[provider.ParamReportDate]
	t, err := utils.ParseReportDate(date)
	if err != nil {
		return nil, fmt.Errorf("cftc report: %w", err)
	}

	cacheKey := provider.CacheKey(f.ModelType(), provider.QueryParams{provider.ParamReportDate: t.Format(time.DateOnly)})
	if cached, ok := f.CacheGet(cacheKey); ok {
		return newCachedResult(cached), nil
	}
	if err := f.RateLimit(ctx); err != nil {
		return nil, err
	}

	soql := fmt.Sprintf("SELECT * WHERE %s = '%s' LIMIT %d",
		colReportDate, t.Format("2006-01-02T15:04:05.000"), ReportRowLimit)
	var rows []models.RawReportRow
	if err := infra.DoJSON(ctx, f.p.http, http.MethodGet, f.p.query(soql), nil, &rows, f.p.headers()); err != nil {
		return nil, fmt.Errorf("cftc report %s: %w", date, err)
	}

	f.CacheSet(cacheKey, rows)
	return newResult(rows), nil
}

func (p *Provider) query(soql string) string {
	return p.baseURL + "?" + url.Values{"$query": {soql}}.Encode()
}
