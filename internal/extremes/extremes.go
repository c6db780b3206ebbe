// Package extremes finds contracts whose net commercial position is close to
// its historical high or low.
package extremes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/seenimoa/cotscope/internal/infra"
	"github.com/seenimoa/cotscope/internal/metrics"
	"github.com/seenimoa/cotscope/internal/store"
	"github.com/seenimoa/cotscope/pkg/models"
	"github.com/seenimoa/cotscope/pkg/utils"
)

// Defaults for Options fields left at zero.
const (
	DefaultBatchSize    = 50
	DefaultBatchDelay   = time.Second
	DefaultHistoryLimit = 1000
	DefaultTTL          = 24 * time.Hour
	DefaultThreshold    = 0.05
)

// HistorySource returns up to limit weekly commercial positions for one
// contract. Order is not assumed.
type HistorySource interface {
	CommercialHistory(ctx context.Context, contractCode string, limit int) ([]models.HistoryPoint, error)
}

// Options tunes the Analyzer.
type Options struct {
	BatchSize    int
	BatchDelay   time.Duration
	HistoryLimit int
	TTL          time.Duration
	CacheKey     string

	// Sleep and Now are replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// Analyzer computes and caches the extremes snapshot.
type Analyzer struct {
	source  HistorySource
	store   store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	opts    Options
}

// New builds an Analyzer. logger and m may be nil.
func New(source HistorySource, s store.Store, logger *slog.Logger, m *metrics.Metrics, opts Options) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchDelay < 0 {
		opts.BatchDelay = 0
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.CacheKey == "" {
		opts.CacheKey = store.KeyExtremes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Analyzer{
		source:  source,
		store:   s,
		logger:  logger.With("component", "extremes"),
		metrics: m,
		opts:    opts,
	}
}

// Cached returns the stored snapshot and its timestamp if one exists,
// fresh or not.
func (a *Analyzer) Cached(ctx context.Context) (map[string]models.ExtremesRecord, time.Time, bool) {
	snap, ts, ok, err := store.GetJSON[map[string]models.ExtremesRecord](ctx, a.store, a.opts.CacheKey)
	if err != nil {
		if errors.Is(err, store.ErrCorrupt) {
			a.metrics.CacheResult("corrupt")
		}
		a.logger.Warn("extremes cache unreadable, treating as miss", "error", err)
		return nil, time.Time{}, false
	}
	return snap, ts, ok
}

// Compute returns the extremes for contractCodes. A snapshot younger than
// the TTL is returned unchanged; otherwise every code's history is fetched in
// throttled batches and the new snapshot is persisted.
func (a *Analyzer) Compute(ctx context.Context, contractCodes []string) (map[string]models.ExtremesRecord, error) {
	if snap, ts, ok := a.Cached(ctx); ok && store.Fresh(a.opts.Now(), ts, a.opts.TTL) {
		a.metrics.CacheResult("hit")
		a.logger.Debug("serving cached extremes", "contracts", len(snap), "age", a.opts.Now().Sub(ts).Round(time.Second))
		return snap, nil
	}
	a.metrics.CacheResult("miss")
	return a.Refresh(ctx, contractCodes)
}

// Refresh recomputes the snapshot regardless of cache age. With no codes
// there is nothing to compute and the stored snapshot is left as it is.
func (a *Analyzer) Refresh(ctx context.Context, contractCodes []string) (map[string]models.ExtremesRecord, error) {
	codes := uniqueCodes(contractCodes)
	if len(codes) == 0 {
		a.logger.Debug("no contract codes, skipping extremes refresh")
		return map[string]models.ExtremesRecord{}, nil
	}
	start := a.opts.Now()

	histories, err := infra.MapBatched(ctx, codes, infra.BatchOptions[string]{
		Size:  a.opts.BatchSize,
		Delay: a.opts.BatchDelay,
		Sleep: a.opts.Sleep,
		OnError: func(batch []string, err error) {
			a.metrics.BatchFailed()
			a.logger.Warn("history batch failed, skipping",
				"first", batch[0], "size", len(batch), "error", err)
		},
	}, func(ctx context.Context, code string) ([]models.HistoryPoint, error) {
		return a.source.CommercialHistory(ctx, code, a.opts.HistoryLimit)
	})
	if err != nil {
		return nil, fmt.Errorf("compute extremes: %w", err)
	}

	out := make(map[string]models.ExtremesRecord, len(histories))
	for code, hist := range histories {
		if rec, ok := Summarize(hist, a.opts.HistoryLimit); ok {
			out[code] = rec
		}
	}

	if err := store.PutJSON(ctx, a.store, a.opts.CacheKey, out, a.opts.Now()); err != nil {
		a.logger.Error("persisting extremes snapshot", "error", err)
	}
	a.metrics.SetExtremesCount(len(out))
	a.logger.Info("extremes computed",
		"requested", len(codes), "computed", len(out), "took", a.opts.Now().Sub(start).Round(time.Millisecond))
	return out, nil
}

// Invalidate drops the cached snapshot.
func (a *Analyzer) Invalidate(ctx context.Context) error {
	return a.store.Delete(ctx, a.opts.CacheKey)
}

// Summarize reduces a history to its net-position envelope. The history is
// ordered most recent first before the current value is taken, and only the
// limit most recent reports count. ok is false for an empty history.
func Summarize(history []models.HistoryPoint, limit int) (rec models.ExtremesRecord, ok bool) {
	if len(history) == 0 {
		return rec, false
	}
	sorted := make([]models.HistoryPoint, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return utils.ShortDate(sorted[i].ReportDate) > utils.ShortDate(sorted[j].ReportDate)
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	rec.Current = sorted[0].Net()
	rec.Max, rec.Min = rec.Current, rec.Current
	for _, h := range sorted[1:] {
		n := h.Net()
		rec.Max = max(rec.Max, n)
		rec.Min = min(rec.Min, n)
	}
	return rec, true
}

func uniqueCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
