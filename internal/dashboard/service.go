// Package dashboard holds the dashboard's view state: the selected report,
// its curated rows, and the derived exchange, group, tracker and
// seasonality views. Transports (CLI, HTTP API) render what it returns.
//
// Failures are logged and degrade to an empty state carrying an error
// string; the error is also returned so callers can choose a status code.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/seenimoa/cotscope/internal/cot"
	"github.com/seenimoa/cotscope/internal/extremes"
	"github.com/seenimoa/cotscope/internal/infra"
	"github.com/seenimoa/cotscope/internal/metrics"
	"github.com/seenimoa/cotscope/internal/provider"
	"github.com/seenimoa/cotscope/internal/seasonality"
	"github.com/seenimoa/cotscope/internal/store"
	"github.com/seenimoa/cotscope/pkg/models"
)

var (
	// ErrNoData is returned when the backend lists no report dates.
	ErrNoData = errors.New("No data available") //nolint:staticcheck // user-facing message

	// ErrStale is returned by a load superseded by a newer one.
	ErrStale = errors.New("superseded by a newer request")
)

// Fetcher routes model requests to providers, trying the next provider of
// a model when one fails. *provider.Registry implements it.
type Fetcher interface {
	FetchWithFallback(ctx context.Context, model provider.ModelType, params provider.QueryParams) (*provider.FetchResult, error)
}

// Preferences stores per-user selections on the backend.
type Preferences interface {
	TableFilters(ctx context.Context, email string) ([]string, error)
	SaveTableFilters(ctx context.Context, email string, selected []string) error
	Favorites(ctx context.Context, email string) ([]string, error)
	SaveFavorites(ctx context.Context, email string, selected []string) error
}

// State is the report currently on screen.
type State struct {
	Dates      []string               `json:"dates"`
	ReportDate string                 `json:"report_date"`
	Rows       []models.NormalizedRow `json:"rows"`
	Error      string                 `json:"error,omitempty"`
	LoadedAt   time.Time              `json:"loaded_at,omitzero"`
}

// Options wires the service's collaborators. Only Fetcher is required.
type Options struct {
	Fetcher     Fetcher
	Preferences Preferences
	Store       store.Store
	Curation    *cot.Curation
	Extremes    *extremes.Analyzer
	Threshold   float64
	Seasonality seasonality.Params
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	Now         func() time.Time
}

// Service is safe for concurrent use.
type Service struct {
	fetch     Fetcher
	prefs     Preferences
	local     *store.LocalState
	curation  *cot.Curation
	extremes  *extremes.Analyzer
	threshold float64
	seasonal  seasonality.Params
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time

	gen   infra.Generation
	mu    sync.RWMutex
	state State
}

// New builds a Service.
func New(opts Options) *Service {
	if opts.Curation == nil {
		opts.Curation = cot.Default()
	}
	if opts.Threshold <= 0 {
		opts.Threshold = extremes.DefaultThreshold
	}
	if opts.Store == nil {
		opts.Store = store.NewMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		fetch:     opts.Fetcher,
		prefs:     opts.Preferences,
		local:     store.NewLocalState(opts.Store),
		curation:  opts.Curation,
		extremes:  opts.Extremes,
		threshold: opts.Threshold,
		seasonal:  opts.Seasonality,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With("component", "dashboard"),
		now:       opts.Now,
	}
}

// State returns a copy of the current view state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Service) snapshotLocked() State {
	st := s.state
	st.Dates = append([]string(nil), st.Dates...)
	st.Rows = append([]models.NormalizedRow{}, st.Rows...)
	return st
}

// Local exposes the persisted per-device state.
func (s *Service) Local() *store.LocalState { return s.local }

// Curation returns the curation table in use.
func (s *Service) Curation() *cot.Curation { return s.curation }

// Dates returns the available report dates, newest first.
func (s *Service) Dates(ctx context.Context) ([]string, error) {
	dates, err := fetchAs[[]string](ctx, s, provider.ModelCOTDates, nil)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, ErrNoData
	}
	return dates, nil
}

// LoadLatest looks up the available dates and loads the newest report.
func (s *Service) LoadLatest(ctx context.Context) (State, error) {
	dates, err := s.Dates(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "latest date lookup failed", "error", err)
		if !errors.Is(err, ErrNoData) {
			err = fmt.Errorf("%w: %w", ErrNoData, err)
		}
		s.mu.Lock()
		s.state = State{Error: err.Error()}
		s.mu.Unlock()
		return s.State(), err
	}

	s.mu.Lock()
	s.state.Dates = dates
	s.mu.Unlock()
	return s.LoadReport(ctx, dates[0])
}

// LoadReport fetches and curates one report. When a newer load starts
// before this one finishes, the result is discarded and ErrStale returned.
func (s *Service) LoadReport(ctx context.Context, date string) (State, error) {
	id := s.gen.Next()
	raw, err := fetchAs[[]models.RawReportRow](ctx, s, provider.ModelCOTReport,
		provider.QueryParams{provider.ParamReportDate: date})
	var rows []models.NormalizedRow
	if err == nil {
		rows = cot.Normalize(raw, date, s.curation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.gen.Current(id) {
		s.metrics.StaleLoad()
		s.logger.DebugContext(ctx, "discarding superseded report load", "date", date)
		return s.snapshotLocked(), ErrStale
	}

	s.state.ReportDate = date
	if err != nil {
		s.logger.ErrorContext(ctx, "report load failed", "date", date, "error", err)
		s.state.Rows = []models.NormalizedRow{}
		s.state.Error = err.Error()
		return s.snapshotLocked(), err
	}
	s.state.Rows = rows
	s.state.Error = ""
	s.state.LoadedAt = s.now()
	s.logger.InfoContext(ctx, "report loaded", "date", date, "raw", len(raw), "rows", len(rows))
	return s.snapshotLocked(), nil
}

// Exchanges lists the consolidated exchanges present in the loaded report.
func (s *Service) Exchanges() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cot.Exchanges(s.state.Rows)
}

// Groups lists the commodity groups present in the loaded report.
func (s *Service) Groups() []cot.Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.curation.GroupsPresent(s.state.Rows)
}

// Rows returns the loaded rows filtered by exchange and group; empty
// arguments match everything.
func (s *Service) Rows(exchange string, group cot.Group) []models.NormalizedRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.curation.Filter(s.state.Rows, exchange, group)
}

// ContractCodes returns the distinct contract codes of the loaded report.
func (s *Service) ContractCodes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return contractCodes(s.state.Rows)
}

func contractCodes(rows []models.NormalizedRow) []string {
	seen := make(map[string]struct{}, len(rows))
	codes := make([]string, 0, len(rows))
	for _, r := range rows {
		if _, dup := seen[r.ContractCode]; dup || r.ContractCode == "" {
			continue
		}
		seen[r.ContractCode] = struct{}{}
		codes = append(codes, r.ContractCode)
	}
	return codes
}

// latestCodes fetches the newest report's contract codes without touching
// the view state, so background work never supersedes a user's load.
func (s *Service) latestCodes(ctx context.Context) ([]string, error) {
	dates, err := s.Dates(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := fetchAs[[]models.RawReportRow](ctx, s, provider.ModelCOTReport,
		provider.QueryParams{provider.ParamReportDate: dates[0]})
	if err != nil {
		return nil, err
	}
	codes := contractCodes(cot.Normalize(raw, dates[0], s.curation))
	if len(codes) == 0 {
		return nil, fmt.Errorf("%w: report %s has no contracts", ErrNoData, dates[0])
	}
	return codes, nil
}

// Tracker returns the filtered rows that sit near a historical extreme of
// their net commercial position. all=true keeps every row that has an
// extremes record, flagged or not. The latest report is loaded first when
// none is on screen.
func (s *Service) Tracker(ctx context.Context, exchange string, group cot.Group, all bool) ([]extremes.TrackedRow, error) {
	if s.extremes == nil {
		return nil, errors.New("extremes analyzer not configured")
	}
	codes := s.ContractCodes()
	if len(codes) == 0 {
		if _, err := s.LoadLatest(ctx); err != nil {
			return []extremes.TrackedRow{}, err
		}
		if codes = s.ContractCodes(); len(codes) == 0 {
			return []extremes.TrackedRow{}, nil
		}
	}
	ext, err := s.extremes.Compute(ctx, codes)
	if err != nil {
		s.logger.ErrorContext(ctx, "extremes unavailable", "error", err)
		return []extremes.TrackedRow{}, err
	}
	rows := extremes.ClassifyTracked(s.Rows(exchange, group), ext, s.threshold)
	if all {
		return rows, nil
	}
	return extremes.Tracked(rows), nil
}

// RefreshExtremes recomputes the extremes snapshot for the loaded report.
// With nothing loaded it fetches the latest report's codes directly and
// leaves the view state alone.
func (s *Service) RefreshExtremes(ctx context.Context) (int, error) {
	if s.extremes == nil {
		return 0, errors.New("extremes analyzer not configured")
	}
	codes := s.ContractCodes()
	if len(codes) == 0 {
		var err error
		if codes, err = s.latestCodes(ctx); err != nil {
			s.logger.ErrorContext(ctx, "no contracts to refresh", "error", err)
			return 0, err
		}
	}
	ext, err := s.extremes.Refresh(ctx, codes)
	if err != nil {
		return 0, err
	}
	return len(ext), nil
}

// History returns weekly commercial positions for one contract, newest
// first, optionally bounded by start and end dates (YYYY-MM-DD).
func (s *Service) History(ctx context.Context, contractCode, start, end string, limit int) ([]models.HistoryPoint, error) {
	params := provider.QueryParams{provider.ParamContractCode: contractCode}
	if start != "" {
		params[provider.ParamStartDate] = start
	}
	if end != "" {
		params[provider.ParamEndDate] = end
	}
	if limit > 0 {
		params[provider.ParamLimit] = strconv.Itoa(limit)
	}
	return fetchAs[[]models.HistoryPoint](ctx, s, provider.ModelCOTHistory, params)
}

// NextRelease returns the next scheduled COT publication date.
func (s *Service) NextRelease(ctx context.Context) (time.Time, error) {
	now := s.now().UTC()
	dates, err := fetchAs[[]time.Time](ctx, s, provider.ModelCOTReleaseSchedule,
		provider.QueryParams{provider.ParamStartDate: now.Format("2006-01-02")})
	if err != nil {
		return time.Time{}, err
	}
	if len(dates) == 0 {
		return time.Time{}, errors.New("no upcoming release scheduled")
	}
	return dates[0], nil
}

// Seasonality fetches symbol's candles and computes its profile. Zero
// fields of p take the service defaults.
func (s *Service) Seasonality(ctx context.Context, symbol string, p seasonality.Params) (*models.SeasonalityResult, error) {
	if p.LookbackYears <= 0 {
		p.LookbackYears = s.seasonal.LookbackYears
	}
	if p.MaxWindowYears <= 0 {
		p.MaxWindowYears = s.seasonal.MaxWindowYears
	}
	if p.MinCandles <= 0 {
		p.MinCandles = s.seasonal.MinCandles
	}

	candles, err := fetchAs[[]models.Candle](ctx, s, provider.ModelSeasonalityCandles,
		provider.QueryParams{provider.ParamSymbol: symbol})
	if err != nil {
		s.metrics.SeasonalityComputed("error")
		s.logger.ErrorContext(ctx, "seasonality candles unavailable", "symbol", symbol, "error", err)
		return nil, err
	}

	res, err := seasonality.Compute(candles, p, s.now())
	switch {
	case errors.Is(err, seasonality.ErrInsufficientData):
		s.metrics.SeasonalityComputed("insufficient")
		return nil, fmt.Errorf("%s: %w", symbol, err)
	case err != nil:
		s.metrics.SeasonalityComputed("error")
		return nil, err
	}
	s.metrics.SeasonalityComputed("ok")
	res.Symbol = symbol
	return res, nil
}

// SeasonalityAssets lists the symbols that have seasonality data.
func (s *Service) SeasonalityAssets(ctx context.Context) ([]models.SeasonalityAsset, error) {
	return fetchAs[[]models.SeasonalityAsset](ctx, s, provider.ModelSeasonalityAssets, nil)
}

// Favorites returns the user's favorites. When the backend is unreachable
// the favorites cached at the last successful call are returned with the
// error.
func (s *Service) Favorites(ctx context.Context, email string) ([]string, error) {
	if s.prefs == nil {
		return s.local.InitialFavorites(ctx), nil
	}
	favs, err := s.prefs.Favorites(ctx, email)
	if err != nil {
		s.logger.WarnContext(ctx, "favorites unavailable, using cached", "error", err)
		return s.local.InitialFavorites(ctx), err
	}
	if err := s.local.SetInitialFavorites(ctx, favs); err != nil {
		s.logger.WarnContext(ctx, "caching favorites", "error", err)
	}
	return favs, nil
}

// SaveFavorites stores favorites on the backend, then locally. The local
// copy is left unchanged when the backend rejects the update.
func (s *Service) SaveFavorites(ctx context.Context, email string, selected []string) error {
	if s.prefs != nil {
		if err := s.prefs.SaveFavorites(ctx, email, selected); err != nil {
			s.logger.ErrorContext(ctx, "saving favorites", "error", err)
			return err
		}
	}
	return s.local.SetInitialFavorites(ctx, selected)
}

// TableFilters returns the user's table filter selection, empty on failure.
func (s *Service) TableFilters(ctx context.Context, email string) ([]string, error) {
	if s.prefs == nil {
		return []string{}, nil
	}
	sel, err := s.prefs.TableFilters(ctx, email)
	if err != nil {
		s.logger.WarnContext(ctx, "table filters unavailable", "error", err)
		return []string{}, err
	}
	return sel, nil
}

// SaveTableFilters stores the user's table filter selection.
func (s *Service) SaveTableFilters(ctx context.Context, email string, selected []string) error {
	if s.prefs == nil {
		return errors.New("preferences backend not configured")
	}
	if err := s.prefs.SaveTableFilters(ctx, email, selected); err != nil {
		s.logger.ErrorContext(ctx, "saving table filters", "error", err)
		return err
	}
	return nil
}

func fetchAs[T any](ctx context.Context, s *Service, model provider.ModelType, params provider.QueryParams) (T, error) {
	var zero T
	if params == nil {
		params = provider.QueryParams{}
	}
	res, err := s.fetch.FetchWithFallback(ctx, model, params)
	if err != nil {
		return zero, err
	}
	if res.Fallback {
		s.logger.WarnContext(ctx, "served by fallback provider", "model", model, "provider", res.Provider)
	}
	v, ok := res.Data.(T)
	if !ok {
		return zero, fmt.Errorf("%s: unexpected payload type %T", model, res.Data)
	}
	return v, nil
}
