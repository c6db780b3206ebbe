package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/seenimoa/cotscope/internal/access"
	"github.com/seenimoa/cotscope/internal/config"
	"github.com/seenimoa/cotscope/internal/cot"
	"github.com/seenimoa/cotscope/internal/dashboard"
	"github.com/seenimoa/cotscope/internal/extremes"
	"github.com/seenimoa/cotscope/internal/logging"
	"github.com/seenimoa/cotscope/internal/metrics"
	"github.com/seenimoa/cotscope/internal/provider"
	"github.com/seenimoa/cotscope/internal/providers"
	"github.com/seenimoa/cotscope/internal/seasonality"
	"github.com/seenimoa/cotscope/internal/store"
)

// app holds the wired components shared by every command.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	store     store.Store
	registry  *provider.Registry
	providers *providers.Set
	extremes  *extremes.Analyzer
	dash      *dashboard.Service
}

// newApp builds the component graph from cfg. Logs go to stderr so that
// command output on stdout stays machine-readable.
func newApp(cfg *config.Config, logLevel string) (*app, error) {
	logCfg := cfg.Logging
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	logger, err := logging.New(logCfg, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	m := metrics.New()

	st, err := openStore(cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	curation, err := cot.LoadFile(cfg.Curation.File)
	if err != nil {
		st.Close()
		return nil, err
	}

	reg := provider.NewRegistry()
	reg.SetObserver(func(name string, model provider.ModelType, start time.Time, err error) {
		m.ObserveUpstream(name, string(model), start, err)
	})
	set, err := providers.RegisterAllTo(reg, cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("registering providers: %w", err)
	}

	an := extremes.New(set.CFTC, st, logger, m, extremes.Options{
		BatchSize:    cfg.Extremes.BatchSize,
		BatchDelay:   cfg.Extremes.BatchDelay,
		HistoryLimit: cfg.Extremes.HistoryLimit,
		TTL:          cfg.Extremes.CacheTTL,
		CacheKey:     cfg.Extremes.CacheKey,
	})

	dash := dashboard.New(dashboard.Options{
		Fetcher:     reg,
		Preferences: set.Backend,
		Store:       st,
		Curation:    curation,
		Extremes:    an,
		Threshold:   cfg.Extremes.Threshold,
		Seasonality: seasonality.Params{
			LookbackYears:  cfg.Seasonality.LookbackYears,
			MaxWindowYears: cfg.Seasonality.MaxWindowYears,
			MinCandles:     cfg.Seasonality.MinCandles,
		},
		Metrics: m,
		Logger:  logger,
	})

	return &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		store:     st,
		registry:  reg,
		providers: set,
		extremes:  an,
		dash:      dash,
	}, nil
}

// gate returns the subscription gate, or nil when access control is off.
func (a *app) gate() *access.Gate {
	if !a.cfg.Access.Enabled {
		return nil
	}
	return access.NewGate(a.providers.Backend, a.cfg.Access.CacheTTL, a.logger)
}

func (a *app) Close() error {
	return a.store.Close()
}

func openStore(cfg config.StorageConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		b, err := store.OpenBadger(cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}
