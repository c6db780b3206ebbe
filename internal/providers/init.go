// Package providers initializes and registers all concrete data providers
// with a provider registry.
package providers

import (
	"net/http"

	"github.com/seenimoa/cotscope/internal/config"
	"github.com/seenimoa/cotscope/internal/provider"
	"github.com/seenimoa/cotscope/internal/providers/backend"
	"github.com/seenimoa/cotscope/internal/providers/cftc"
)

// Set holds the concrete providers for callers that need more than the
// registry's Fetch (account calls, extremes history).
type Set struct {
	Backend *backend.Provider
	CFTC    *cftc.Provider
}

// RegisterAllTo registers all providers to the given registry. The backend
// goes first so it is the default for the models both serve; the CFTC
// provider is the fallback for report dates and rows.
func RegisterAllTo(reg *provider.Registry, cfg *config.Config) (*Set, error) {
	// --- Dashboard backend (no credentials) ---
	be := backend.NewWithTimeout(cfg.Backend.BaseURL, cfg.Backend.Timeout)
	if err := be.Init(nil); err != nil {
		return nil, err
	}
	if err := reg.Register(be); err != nil {
		return nil, err
	}

	// --- CFTC public reporting (optional app token) ---
	opts := cftc.Options{
		BaseURL:     cfg.CFTC.BaseURL,
		ScheduleURL: cfg.CFTC.ScheduleURL,
	}
	if cfg.CFTC.Timeout > 0 {
		opts.HTTPClient = &http.Client{Timeout: cfg.CFTC.Timeout}
	}
	cp := cftc.New(opts)
	if err := cp.Init(map[string]string{"app_token": cfg.CFTC.AppToken}); err != nil {
		return nil, err
	}
	if err := reg.Register(cp); err != nil {
		return nil, err
	}

	return &Set{Backend: be, CFTC: cp}, nil
}
