package cftc

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/seenimoa/cotscope/internal/infra"
	"github.com/seenimoa/cotscope/internal/provider"
	"github.com/seenimoa/cotscope/pkg/models"
	"github.com/seenimoa/cotscope/pkg/utils"
)

// Socrata column names used in SoQL.
const (
	colReportDate   = "report_date_as_yyyy_mm_dd"
	colContractCode = "cftc_contract_market_code"
	colCommLong     = "comm_positions_long_all"
	colCommShort    = "comm_positions_short_all"
)

// DefaultHistoryLimit caps a history query when no limit is given.
const DefaultHistoryLimit = 1000

// ---- COTHistory fetcher ----

type historyFetcher struct {
	provider.BaseFetcher
	p *Provider
}

func newHistoryFetcher(p *Provider) *historyFetcher {
	return &historyFetcher{
		BaseFetcher: provider.NewBaseFetcherWithOpts(
			provider.ModelCOTHistory,
			"Weekly commercial positions for one contract, newest first",
			[]string{provider.ParamContractCode},
			[]string{provider.ParamStartDate, provider.ParamEndDate, provider.ParamLimit},
			time.Hour, 50, time.Second,
		),
		p: p,
	}
}

func (f *historyFetcher) Fetch(ctx context.Context, params provider.QueryParams) (*provider.FetchResult, error) {
	code := strings.TrimSpace(params[provider.ParamContractCode])
	if code == "" {
		return nil, &provider.ErrMissingParam{Param: provider.ParamContractCode}
	}
	limit := DefaultHistoryLimit
	if s := params[provider.ParamLimit]; s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("cftc history: invalid limit %q", s)
		}
		limit = n
	}

	cacheKey := provider.CacheKey(f.ModelType(), params)
	if cached, ok := f.CacheGet(cacheKey); ok {
		return newCachedResult(cached), nil
	}
	if err := f.RateLimit(ctx); err != nil {
		return nil, err
	}

	soql, err := historyQuery(code, params[provider.ParamStartDate], params[provider.ParamEndDate], limit)
	if err != nil {
		return nil, fmt.Errorf("cftc history %s: %w", code, err)
	}
	var rows []models.RawReportRow
	if err := infra.DoJSON(ctx, f.p.http, http.MethodGet, f.p.query(soql), nil, &rows, f.p.headers()); err != nil {
		return nil, fmt.Errorf("cftc history %s: %w", code, err)
	}

	points := make([]models.HistoryPoint, 0, len(rows))
	for _, r := range rows {
		date := utils.ShortDate(r.Date())
		if date == "" {
			continue
		}
		points = append(points, models.HistoryPoint{
			ReportDate: date,
			Long:       utils.ToInt(r.CommLong),
			Short:      utils.ToInt(r.CommShort),
		})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].ReportDate > points[j].ReportDate })

	f.CacheSet(cacheKey, points)
	return newResult(points), nil
}

// historyQuery builds the SoQL statement for one contract. Dates are
// inclusive and may be empty.
func historyQuery(code, start, end string, limit int) (string, error) {
	var where strings.Builder
	fmt.Fprintf(&where, "%s = '%s'", colContractCode, soqlEscape(code))
	for _, b := range []struct {
		op, value string
	}{{">=", start}, {"<=", end}} {
		if b.value == "" {
			continue
		}
		t, err := utils.ParseReportDate(b.value)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&where, " AND %s %s '%s'", colReportDate, b.op, t.Format("2006-01-02T15:04:05.000"))
	}
	return fmt.Sprintf("SELECT %s, %s, %s WHERE %s ORDER BY %s DESC LIMIT %d",
		colReportDate, colCommLong, colCommShort, where.String(), colReportDate, limit), nil
}

func soqlEscape(s string) string { return strings.ReplaceAll(s, "'", "''") }

// CommercialHistory returns up to limit weekly commercial positions for one
// contract, newest first.
func (p *Provider) CommercialHistory(ctx context.Context, contractCode string, limit int) ([]models.HistoryPoint, error) {
	params := provider.QueryParams{provider.ParamContractCode: contractCode}
	if limit > 0 {
		params[provider.ParamLimit] = strconv.Itoa(limit)
	}
	res, err := p.history.Fetch(ctx, params)
	if err != nil {
		return nil, err
	}
	return res.Data.([]models.HistoryPoint), nil
}
