// Package backend implements the dashboard backend provider: the REST API
// that serves COT report data, seasonality series, user preferences, the
// auth and billing flows, and the AI assistant.
package backend

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
	providerName   = "backend"
	DefaultBaseURL = "http://localhost:5000"
)

// Provider implements provider.Provider for the dashboard backend.
type Provider struct {
	provider.BaseProvider
	c *client
}

// client is shared by the provider's fetchers and account calls.
type client struct {
	baseURL string
	http    *http.Client
}

// New creates a backend provider rooted at baseURL. A nil httpClient uses
// infra.HTTPClient.
func New(baseURL string, httpClient *http.Client) *Provider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
	p := &Provider{
		BaseProvider: provider.NewBaseProvider(
			providerName,
			"Dashboard backend - COT reports, seasonality, preferences, auth and billing",
			c.baseURL,
			nil,
		),
		c: c,
	}

	// --- Commitment of Traders ---
	p.RegisterFetcher(newDatesFetcher(c))
	p.RegisterFetcher(newReportFetcher(c))

	// --- Seasonality ---
	p.RegisterFetcher(newCandlesFetcher(c))
	p.RegisterFetcher(newAssetsFetcher(c))

	return p
}

// NewWithTimeout is New with a dedicated client using timeout.
func NewWithTimeout(baseURL string, timeout time.Duration) *Provider {
	if timeout <= 0 {
		return New(baseURL, nil)
	}
	return New(baseURL, &http.Client{Timeout: timeout})
}

// Ping checks that the dates endpoint answers.
func (p *Provider) Ping(ctx context.Context) error {
	var resp datesResponse
	if err := p.c.getJSON(ctx, "/api/cftc/dates", nil, &resp); err != nil {
		return fmt.Errorf("backend ping: %w", err)
	}
	return nil
}

// BaseURL returns the API root.
func (p *Provider) BaseURL() string { return p.c.baseURL }

// --- Shared helpers ---

func (c *client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *client) getJSON(ctx context.Context, path string, query url.Values, dest any) error {
	return infra.DoJSON(ctx, c.http, http.MethodGet, c.endpoint(path, query), nil, dest, nil)
}

// postJSON validates payload before sending it.
func (c *client) postJSON(ctx context.Context, path string, payload, dest any) error {
	if err := infra.ValidateStruct(payload); err != nil {
		return err
	}
	return infra.DoJSON(ctx, c.http, http.MethodPost, c.endpoint(path, nil), payload, dest, nil)
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
