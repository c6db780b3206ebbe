package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/seenimoa/cotscope/internal/provider"
	"github.com/seenimoa/cotscope/pkg/models"
	"github.com/seenimoa/cotscope/pkg/utils"
)

// ErrUnsuccessful is returned when the backend answers with success=false.
var ErrUnsuccessful = errors.New("backend reported failure")

// ---- COTDates fetcher ----

type datesResponse struct {
	Success bool     `json:"success"`
	Dates   []string `json:"dates"`
	Message string   `json:"message,omitempty"`
}

type datesFetcher struct {
	provider.BaseFetcher
	c *client
}

func newDatesFetcher(c *client) *datesFetcher {
	return &datesFetcher{
		BaseFetcher: provider.NewBaseFetcherWithOpts(
			provider.ModelCOTDates,
			"Available COT report dates, newest first",
			nil, nil,
			10*time.Minute, 5, time.Second,
		),
		c: c,
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

	var resp datesResponse
	if err := f.c.getJSON(ctx, "/api/cftc/dates", nil, &resp); err != nil {
		return nil, fmt.Errorf("backend dates: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("backend dates: %w: %s", ErrUnsuccessful, resp.Message)
	}

	dates := make([]string, 0, len(resp.Dates))
	for _, d := range resp.Dates {
		if d = strings.TrimSpace(d); d != "" {
			dates = append(dates, d)
		}
	}

	f.CacheSet(cacheKey, dates)
	return newResult(dates), nil
}

// ---- COTReport fetcher ----

type reportResponse struct {
	Data []models.RawReportRow `json:"data"`
}

type reportFetcher struct {
	provider.BaseFetcher
	c *client
}

func newReportFetcher(c *client) *reportFetcher {
	return &reportFetcher{
		BaseFetcher: provider.NewBaseFetcherWithOpts(
			provider.ModelCOTReport,
			"All COT rows for one report date",
			[]string{provider.ParamReportDate},
			nil,
			30*time.Minute, 5, time.Second,
		),
		c: c,
	}
}

func (f *reportFetcher) Fetch(ctx context.Context, params provider.QueryParams) (*provider.FetchResult, error) {
	date := params[provider.ParamReportDate]

	cacheKey := provider.CacheKey(f.ModelType(), params)
	if cached, ok := f.CacheGet(cacheKey); ok {
		return newCachedResult(cached), nil
	}
	if err := f.RateLimit(ctx); err != nil {
		return nil, err
	}

	q := url.Values{"report_date": {utils.ReportQueryDate(date)}}
	var resp reportResponse
	if err := f.c.getJSON(ctx, "/api/cftc/data", q, &resp); err != nil {
		return nil, fmt.Errorf("backend report %s: %w", date, err)
	}

	f.CacheSet(cacheKey, resp.Data)
	return newResult(resp.Data), nil
}

// ---- SeasonalityCandles fetcher ----

type candlesFetcher struct {
	provider.BaseFetcher
	c *client
}

func newCandlesFetcher(c *client) *candlesFetcher {
	return &candlesFetcher{
		BaseFetcher: provider.NewBaseFetcherWithOpts(
			provider.ModelSeasonalityCandles,
			"Daily candles used for seasonality",
			[]string{provider.ParamSymbol},
			nil,
			time.Hour, 5, time.Second,
		),
		c: c,
	}
}

func (f *candlesFetcher) Fetch(ctx context.Context, params provider.QueryParams) (*provider.FetchResult, error) {
	symbol := params[provider.ParamSymbol]

	cacheKey := provider.CacheKey(f.ModelType(), params)
	if cached, ok := f.CacheGet(cacheKey); ok {
		return newCachedResult(cached), nil
	}
	if err := f.RateLimit(ctx); err != nil {
		return nil, err
	}

	var candles []models.Candle
	if err := f.c.getJSON(ctx, "/seasonality_data", url.Values{"symbol": {symbol}}, &candles); err != nil {
		return nil, fmt.Errorf("backend seasonality %s: %w", symbol, err)
	}

	f.CacheSet(cacheKey, candles)
	return newResult(candles), nil
}

// ---- SeasonalityAssets fetcher ----

type assetsResponse struct {
	Assets []json.RawMessage `json:"assets"`
}

type assetsFetcher struct {
	provider.BaseFetcher
	c *client
}

func newAssetsFetcher(c *client) *assetsFetcher {
	return &assetsFetcher{
		BaseFetcher: provider.NewBaseFetcherWithOpts(
			provider.ModelSeasonalityAssets,
			"Catalogue of symbols with seasonality data",
			nil, nil,
			6*time.Hour, 5, time.Second,
		),
		c: c,
	}
}

func (f *assetsFetcher) Fetch(ctx context.Context, params provider.QueryParams) (*provider.FetchResult, error) {
	cacheKey := provider.CacheKey(f.ModelType(), params)
	if cached, ok := f.CacheGet(cacheKey); ok {
		return newCachedResult(cached), nil
	}
	if err := f.RateLimit(ctx); err != nil {
		return nil, err
	}

	var resp assetsResponse
	if err := f.c.getJSON(ctx, "/seasonality_assets", nil, &resp); err != nil {
		return nil, fmt.Errorf("backend seasonality assets: %w", err)
	}

	assets := make([]models.SeasonalityAsset, 0, len(resp.Assets))
	for _, raw := range resp.Assets {
		if a, ok := parseAsset(raw); ok {
			assets = append(assets, a)
		}
	}

	f.CacheSet(cacheKey, assets)
	return newResult(assets), nil
}

// parseAsset accepts either a bare symbol string or an asset object.
func parseAsset(raw json.RawMessage) (models.SeasonalityAsset, bool) {
	var sym string
	if err := json.Unmarshal(raw, &sym); err == nil {
		sym = strings.TrimSpace(sym)
		return models.SeasonalityAsset{Symbol: sym, Name: sym}, sym != ""
	}
	var a models.SeasonalityAsset
	if err := json.Unmarshal(raw, &a); err != nil || strings.TrimSpace(a.Symbol) == "" {
		return a, false
	}
	if a.Name == "" {
		a.Name = a.Symbol
	}
	return a, true
}
