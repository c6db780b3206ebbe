// Package access decides whether a user may see dashboard data, based on
// the backend's subscription status.
package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/seenimoa/cotscope/internal/infra"
	"github.com/seenimoa/cotscope/pkg/models"
)

// HeaderEmail carries the signed-in user's email on API requests.
const HeaderEmail = "X-User-Email"

// DefaultCacheTTL is used when NewGate is given a non-positive TTL.
const DefaultCacheTTL = 5 * time.Minute

// ErrNoEmail is returned when no user is identified.
var ErrNoEmail = errors.New("no user email")

// StatusSource reports a user's subscription state.
type StatusSource interface {
	SubscriptionStatus(ctx context.Context, email string) (models.SubscriptionStatus, error)
}

// Status is the gate's verdict for one user.
type Status struct {
	Email        string    `json:"email"`
	Active       bool      `json:"active"`
	Subscription string    `json:"subscription"`
	TrialEnd     time.Time `json:"trial_end,omitzero"`
	CheckedAt    time.Time `json:"checked_at"`
}

// Trialing reports whether access comes from an unexpired trial rather
// than a paid subscription.
func (s Status) Trialing() bool {
	return s.Active && s.Subscription != "active"
}

// Gate checks and caches subscription status per email.
type Gate struct {
	src    StatusSource
	cache  *infra.Cache[Status]
	logger *slog.Logger
	now    func() time.Time
}

// NewGate creates a gate caching verdicts for ttl. logger may be nil.
func NewGate(src StatusSource, ttl time.Duration, logger *slog.Logger) *Gate {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		src:    src,
		cache:  infra.NewCache[Status](ttl),
		logger: logger.With("component", "access"),
		now:    time.Now,
	}
}

// WithClock replaces the gate clock. Intended for tests.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	g.cache.WithClock(now)
	return g
}

// Check returns the user's access status. Successful lookups are cached;
// failures are not.
func (g *Gate) Check(ctx context.Context, email string) (Status, error) {
	key := normalizeEmail(email)
	if key == "" {
		return Status{}, ErrNoEmail
	}
	if st, ok := g.cache.Get(key); ok {
		return st, nil
	}

	sub, err := g.src.SubscriptionStatus(ctx, key)
	if err != nil {
		return Status{}, fmt.Errorf("subscription status for %s: %w", key, err)
	}
	st := Evaluate(sub, g.now())
	st.Email = key
	g.cache.Set(key, st)
	g.logger.Debug("subscription checked", "email", key, "active", st.Active, "status", st.Subscription)
	return st, nil
}

// Invalidate forgets the cached verdict, e.g. after a billing action.
func (g *Gate) Invalidate(email string) {
	g.cache.Invalidate(normalizeEmail(email))
}

// Evaluate grants access to an active subscription or a trial ending after now.
func Evaluate(sub models.SubscriptionStatus, now time.Time) Status {
	st := Status{
		Subscription: strings.ToLower(strings.TrimSpace(sub.Status)),
		TrialEnd:     sub.TrialEndTime(),
		CheckedAt:    now,
	}
	st.Active = st.Subscription == "active" || (!st.TrialEnd.IsZero() && st.TrialEnd.After(now))
	return st
}

// Middleware rejects requests whose X-User-Email has no access: 401 without
// an email, 402 when inactive, 502 when the backend cannot be asked.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := r.Header.Get(HeaderEmail)
		st, err := g.Check(r.Context(), email)
		switch {
		case errors.Is(err, ErrNoEmail):
			deny(w, http.StatusUnauthorized, "missing "+HeaderEmail+" header")
			return
		case err != nil:
			g.logger.WarnContext(r.Context(), "subscription check failed", "error", err)
			deny(w, http.StatusBadGateway, "subscription status unavailable")
			return
		case !st.Active:
			deny(w, http.StatusPaymentRequired, "subscription inactive")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg}) //nolint:errcheck
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
