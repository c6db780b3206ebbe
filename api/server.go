// Package api provides the HTTP REST API server for cotscope.
//
// It exposes the report, tracker and seasonality views of the dashboard,
// per-user preferences, the assistant, and a WebSocket feed of refresh
// events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seenimoa/cotscope/internal/access"
	"github.com/seenimoa/cotscope/internal/config"
	"github.com/seenimoa/cotscope/internal/cot"
	"github.com/seenimoa/cotscope/internal/dashboard"
	"github.com/seenimoa/cotscope/internal/infra"
	"github.com/seenimoa/cotscope/internal/metrics"
	"github.com/seenimoa/cotscope/internal/providers/backend"
	"github.com/seenimoa/cotscope/internal/scheduler"
	"github.com/seenimoa/cotscope/internal/seasonality"
	"github.com/seenimoa/cotscope/pkg/models"
)

// Account is the subset of the backend's account calls the API forwards.
type Account interface {
	SubscriptionStatus(ctx context.Context, email string) (models.SubscriptionStatus, error)
	Ask(ctx context.Context, r backend.ChatRequest) (models.ChatAnswer, error)
}

// Options wires the server. Config and Dashboard are required.
type Options struct {
	Config    *config.Config
	Dashboard *dashboard.Service
	Account   Account
	Gate      *access.Gate         // nil leaves data routes open
	Scheduler *scheduler.Scheduler // nil disables POST /extremes/refresh
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Version   string
}

// Server is the HTTP API server.
type Server struct {
	router  chi.Router
	cfg     *config.Config
	dash    *dashboard.Service
	account Account
	gate    *access.Gate
	sched   *scheduler.Scheduler
	metrics *metrics.Metrics
	logger  *slog.Logger
	version string
	wsHub   *WSHub
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("api: config is required")
	}
	if opts.Dashboard == nil {
		return nil, errors.New("api: dashboard service is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	logger := opts.Logger.With("component", "api")

	srv := &Server{
		cfg:     opts.Config,
		dash:    opts.Dashboard,
		account: opts.Account,
		gate:    opts.Gate,
		sched:   opts.Scheduler,
		metrics: opts.Metrics,
		logger:  logger,
		version: opts.Version,
		wsHub:   NewWSHub(opts.Metrics, logger),
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Hub returns the WebSocket hub, e.g. to feed it scheduler events.
func (s *Server) Hub() *WSHub {
	return s.wsHub
}

// ListenAndServe starts the HTTP server and blocks until SIGINT or SIGTERM,
// then shuts down gracefully.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.wsHub.Run(hubCtx)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(done)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-done:
	}
	s.logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(ctx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	// CORS
	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", access.HeaderEmail},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Configuration
		r.Get("/config", s.handleGetConfig)
		r.Get("/config/keys", s.handleGetConfigKeys)

		// Account routes stay reachable without an active subscription.
		r.Get("/subscription", s.handleSubscription)

		// WebSocket
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			if s.gate != nil {
				r.Use(s.gate.Middleware)
			}

			// Report
			r.Get("/dates", s.handleDates)
			r.Get("/report", s.handleReport)
			r.Get("/state", s.handleState)
			r.Get("/exchanges", s.handleExchanges)
			r.Get("/groups", s.handleGroups)
			r.Get("/rows", s.handleRows)

			// Extremes
			r.Get("/tracker", s.handleTracker)
			r.Post("/extremes/refresh", s.handleRefreshExtremes)
			r.Get("/history/{code}", s.handleHistory)
			r.Get("/release/next", s.handleNextRelease)

			// Seasonality
			r.Get("/seasonality/assets", s.handleSeasonalityAssets)
			r.Get("/seasonality/{symbol}", s.handleSeasonality)

			// Preferences
			r.Get("/preferences/favorites", s.handleGetFavorites)
			r.Post("/preferences/favorites", s.handleSaveFavorites)
			r.Get("/preferences/table_filters", s.handleGetTableFilters)
			r.Post("/preferences/table_filters", s.handleSaveTableFilters)

			// Assistant
			r.Post("/ask", s.handleAsk)
		})
	})

	return r
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.InfoContext(r.Context(), "http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"took", time.Since(start).Round(time.Microsecond),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SelectionRequest is the body for POST /preferences/*.
type SelectionRequest struct {
	Selected []string `json:"selected" validate:"required,dive,required"`
}

// AskRequest is the body for POST /api/v1/ask.
type AskRequest struct {
	Question string `json:"question" validate:"required,max=4000"`
}

type rowsQuery struct {
	Exchange string `json:"exchange" validate:"omitempty,max=16"`
	Group    string `json:"group"`
}

type historyQuery struct {
	Start string `json:"start" validate:"omitempty,datetime=2006-01-02"`
	End   string `json:"end"   validate:"omitempty,datetime=2006-01-02"`
	Limit int    `json:"limit" validate:"omitempty,min=1,max=5000"`
}

type seasonalityQuery struct {
	Lookback int    `json:"lookback" validate:"omitempty,min=1,max=50"`
	Cycle    string `json:"cycle"    validate:"omitempty,oneof=all pre election post midterm"`
	Start    string `json:"start"    validate:"omitempty,datetime=2006-01-02"`
	End      string `json:"end"      validate:"omitempty,datetime=2006-01-02"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.dash.State()
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]any{
			"status":      "ok",
			"version":     s.version,
			"report_date": st.ReportDate,
			"rows":        len(st.Rows),
			"ws_clients":  s.wsHub.ClientCount(),
			"time_utc":    time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func (s *Server) handleDates(w http.ResponseWriter, r *http.Request) {
	dates, err := s.dash.Dates(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: dates})
}

// handleReport loads ?date=, or the newest report when no date is given.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	var (
		st  dashboard.State
		err error
	)
	if date == "" {
		st, err = s.dash.LoadLatest(r.Context())
	} else {
		st, err = s.dash.LoadReport(r.Context(), date)
	}
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: st})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.dash.State()})
}

func (s *Server) handleExchanges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: nonNil(s.dash.Exchanges())})
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: nonNil(s.dash.Groups())})
}

func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	exchange, group, ok := s.parseRowsQuery(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.dash.Rows(exchange, group)})
}

func (s *Server) handleTracker(w http.ResponseWriter, r *http.Request) {
	exchange, group, ok := s.parseRowsQuery(w, r)
	if !ok {
		return
	}
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))

	rows, err := s.dash.Tracker(r.Context(), exchange, group, all)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: nonNil(rows)})
}

func (s *Server) handleRefreshExtremes(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil {
		writeError(w, http.StatusServiceUnavailable, "extremes refresh is not configured")
		return
	}
	if err := s.sched.RunNow(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]any{"refreshed": true}})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		writeError(w, http.StatusBadRequest, "contract code is required")
		return
	}
	q := r.URL.Query()
	limit, err := optionalInt(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit: "+err.Error())
		return
	}
	hq := historyQuery{Start: q.Get("start"), End: q.Get("end"), Limit: limit}
	if err := infra.ValidateStruct(hq); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hist, err := s.dash.History(r.Context(), code, hq.Start, hq.End, hq.Limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: nonNil(hist)})
}

func (s *Server) handleNextRelease(w http.ResponseWriter, r *http.Request) {
	next, err := s.dash.NextRelease(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    map[string]string{"date": next.Format("2006-01-02")},
	})
}

func (s *Server) handleSeasonalityAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.dash.SeasonalityAssets(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: nonNil(assets)})
}

func (s *Server) handleSeasonality(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(chi.URLParam(r, "symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	p, err := parseSeasonalityQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.dash.Seasonality(r.Context(), symbol, p)
	switch {
	case errors.Is(err, seasonality.ErrInsufficientData):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: res})
}

func (s *Server) handleGetFavorites(w http.ResponseWriter, r *http.Request) {
	email, ok := requireEmail(w, r)
	if !ok {
		return
	}
	favs, err := s.dash.Favorites(r.Context(), email)
	if err != nil {
		// Cached favorites are still served; the error is informational.
		writeJSON(w, http.StatusOK, APIResponse{Success: false, Data: nonNil(favs), Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: nonNil(favs)})
}

func (s *Server) handleSaveFavorites(w http.ResponseWriter, r *http.Request) {
	email, ok := requireEmail(w, r)
	if !ok {
		return
	}
	req, ok := decodeSelection(w, r)
	if !ok {
		return
	}
	if err := s.dash.SaveFavorites(r.Context(), email, req.Selected); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: req.Selected})
}

func (s *Server) handleGetTableFilters(w http.ResponseWriter, r *http.Request) {
	email, ok := requireEmail(w, r)
	if !ok {
		return
	}
	sel, err := s.dash.TableFilters(r.Context(), email)
	if err != nil {
		writeJSON(w, http.StatusOK, APIResponse{Success: false, Data: nonNil(sel), Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: nonNil(sel)})
}

func (s *Server) handleSaveTableFilters(w http.ResponseWriter, r *http.Request) {
	email, ok := requireEmail(w, r)
	if !ok {
		return
	}
	req, ok := decodeSelection(w, r)
	if !ok {
		return
	}
	if err := s.dash.SaveTableFilters(r.Context(), email, req.Selected); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: req.Selected})
}

func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request) {
	if s.account == nil {
		writeError(w, http.StatusServiceUnavailable, "account backend is not configured")
		return
	}
	email, ok := requireEmail(w, r)
	if !ok {
		return
	}
	sub, err := s.account.SubscriptionStatus(r.Context(), email)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	st := access.Evaluate(sub, time.Now())
	st.Email = email
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: st})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.account == nil {
		writeError(w, http.StatusServiceUnavailable, "account backend is not configured")
		return
	}
	email, ok := requireEmail(w, r)
	if !ok {
		return
	}
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := infra.ValidateStruct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ans, err := s.account.Ask(r.Context(), backend.ChatRequest{Question: req.Question, Email: email})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: ans})
}

// ============================================================
// Helpers
// ============================================================

func (s *Server) parseRowsQuery(w http.ResponseWriter, r *http.Request) (string, cot.Group, bool) {
	q := rowsQuery{
		Exchange: strings.TrimSpace(r.URL.Query().Get("exchange")),
		Group:    strings.TrimSpace(r.URL.Query().Get("group")),
	}
	if err := infra.ValidateStruct(q); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	if q.Group == "" {
		return q.Exchange, "", true
	}
	group, err := cot.ParseGroup(q.Group)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	return q.Exchange, group, true
}

func parseSeasonalityQuery(r *http.Request) (seasonality.Params, error) {
	var p seasonality.Params
	q := r.URL.Query()
	lookback, err := optionalInt(q.Get("lookback"))
	if err != nil {
		return p, fmt.Errorf("lookback: %w", err)
	}
	sq := seasonalityQuery{
		Lookback: lookback,
		Cycle:    strings.ToLower(strings.TrimSpace(q.Get("cycle"))),
		Start:    q.Get("start"),
		End:      q.Get("end"),
	}
	if err := infra.ValidateStruct(sq); err != nil {
		return p, err
	}

	p.LookbackYears = sq.Lookback
	if p.Cycle, err = seasonality.ParseCycle(sq.Cycle); err != nil {
		return p, err
	}
	if sq.Start != "" {
		p.Start, _ = time.Parse(time.DateOnly, sq.Start)
	}
	if sq.End != "" {
		p.End, _ = time.Parse(time.DateOnly, sq.End)
	}
	if !p.Start.IsZero() && !p.End.IsZero() && p.End.Before(p.Start) {
		return p, errors.New("end is before start")
	}
	return p, nil
}

func requireEmail(w http.ResponseWriter, r *http.Request) (string, bool) {
	email := strings.TrimSpace(r.Header.Get(access.HeaderEmail))
	if email == "" {
		writeError(w, http.StatusUnauthorized, "missing "+access.HeaderEmail+" header")
		return "", false
	}
	return email, true
}

func decodeSelection(w http.ResponseWriter, r *http.Request) (SelectionRequest, bool) {
	var req SelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if err := infra.ValidateStruct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	return req, true
}

func optionalInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var httpErr *infra.ErrHTTP
	switch {
	case errors.Is(err, infra.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, dashboard.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, dashboard.ErrStale):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}
