// Package cftc implements the CFTC public reporting provider.
//
// Positions come from the Socrata "Legacy Futures Only" resource 6dca-aqww,
// queried with SoQL. The same rows back the dashboard, so the dates and
// report fetchers stand in when the backend is down. An app token is optional; without one Socrata applies a
// shared, lower throttle. The weekly release schedule is scraped from the
// CFTC website.
//
// Docs: https://publicreporting.cftc.gov/resource/6dca-aqww
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
)

const (
	providerName = "cftc"
	credAppToken = "app_token"

	DefaultBaseURL     = "https://publicreporting.cftc.gov/resource/6dca-aqww.json"
	DefaultScheduleURL = "https://www.cftc.gov/MarketReports/CommitmentsofTraders/ReleaseSchedule/index.htm"
)

// Options configures the provider. Zero values fall back to the public
// endpoints and infra.HTTPClient.
type Options struct {
	BaseURL     string
	ScheduleURL string
	AppToken    string
	HTTPClient  *http.Client
}

// Provider implements provider.Provider for the CFTC.
type Provider struct {
	provider.BaseProvider
	baseURL     string
	scheduleURL string
	appToken    string
	http        *http.Client

	history *historyFetcher
}

// New creates a CFTC provider and registers its fetchers.
func New(opts Options) *Provider {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.ScheduleURL == "" {
		opts.ScheduleURL = DefaultScheduleURL
	}
	p := &Provider{
		BaseProvider: provider.NewBaseProvider(
			providerName,
			"CFTC public reporting - legacy futures-only Commitments of Traders",
			"https://publicreporting.cftc.gov",
			[]provider.ProviderCredential{
				{
					Name:        credAppToken,
					Description: "Socrata app token (optional, raises the request throttle)",
					Required:    false,
					EnvVar:      "COTSCOPE_CFTC_APP_TOKEN",
				},
			},
		),
		baseURL:     opts.BaseURL,
		scheduleURL: opts.ScheduleURL,
		appToken:    opts.AppToken,
		http:        opts.HTTPClient,
	}

	p.history = newHistoryFetcher(p)
	p.RegisterFetcher(newDatesFetcher(p))
	p.RegisterFetcher(newReportFetcher(p))
	p.RegisterFetcher(p.history)
	p.RegisterFetcher(newScheduleFetcher(p))

	return p
}

// Init stores credentials; a non-empty app_token replaces the configured one.
func (p *Provider) Init(credentials map[string]string) error {
	if err := p.BaseProvider.Init(credentials); err != nil {
		return err
	}
	if tok := strings.TrimSpace(credentials[credAppToken]); tok != "" {
		p.appToken = tok
	}
	return nil
}

// Ping issues a one-row query.
func (p *Provider) Ping(ctx context.Context) error {
	var rows []map[string]any
	q := url.Values{"$limit": {"1"}}
	if err := infra.DoJSON(ctx, p.http, http.MethodGet, p.baseURL+"?"+q.Encode(), nil, &rows, p.headers()); err != nil {
		return fmt.Errorf("cftc ping: %w", err)
	}
	return nil
}

// HasAppToken reports whether requests carry an app token.
func (p *Provider) HasAppToken() bool { return p.appToken != "" }

func (p *Provider) headers() map[string]string {
	if p.appToken == "" {
		return nil
	}
	return map[string]string{"X-App-Token": p.appToken}
}

func newResult(data any) *provider.FetchResult {
	return &provider.FetchResult{
		Data:      data,
		FetchedAt: time.Now(),
	}
}

func newCachedResult(data any) *provider.FetchResult {
	return &provider.FetchResult{
		Data:      data,
		FetchedAt: time.Now(),
		Cached:    true,
	}
}
