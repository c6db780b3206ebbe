package access

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/seenimoa/cotscope/pkg/models"
)

type fakeStatus struct {
	calls  int
	byUser map[string]models.SubscriptionStatus
	err    error
}

func (f *fakeStatus) SubscriptionStatus(_ context.Context, email string) (models.SubscriptionStatus, error) {
	f.calls++
	if f.err != nil {
		return models.SubscriptionStatus{}, f.err
	}
	return f.byUser[email], nil
}

var now = time.Date(2024, 5, 8, 12, 0, 0, 0, time.UTC)

func newTestGate(src StatusSource, clock *time.Time) *Gate {
	return NewGate(src, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithClock(func() time.Time { return *clock })
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		sub    models.SubscriptionStatus
		active bool
		trial  bool
	}{
		{"paid", models.SubscriptionStatus{Status: "active"}, true, false},
		{"paid upper", models.SubscriptionStatus{Status: " ACTIVE "}, true, false},
		{"trial running", models.SubscriptionStatus{Status: "trialing", TrialEnd: now.Add(time.Hour).Unix()}, true, true},
		{"trial over", models.SubscriptionStatus{Status: "trialing", TrialEnd: now.Add(-time.Second).Unix()}, false, false},
		{"trial ends now", models.SubscriptionStatus{TrialEnd: now.Unix()}, false, false},
		{"canceled", models.SubscriptionStatus{Status: "canceled"}, false, false},
		{"nothing", models.SubscriptionStatus{}, false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st := Evaluate(tc.sub, now)
			if st.Active != tc.active {
				t.Errorf("Active = %v, want %v", st.Active, tc.active)
			}
			if st.Trialing() != tc.trial {
				t.Errorf("Trialing = %v, want %v", st.Trialing(), tc.trial)
			}
		})
	}
}

func TestCheckCachesPerEmail(t *testing.T) {
	src := &fakeStatus{byUser: map[string]models.SubscriptionStatus{
		"a@b.co": {Status: "active"},
	}}
	clock := now
	g := newTestGate(src, &clock)
	ctx := context.Background()

	for _, email := range []string{"a@b.co", " A@B.co ", "a@b.co"} {
		st, err := g.Check(ctx, email)
		if err != nil || !st.Active || st.Email != "a@b.co" {
			t.Fatalf("Check(%q) = %+v, %v", email, st, err)
		}
	}
	if src.calls != 1 {
		t.Errorf("backend calls = %d, want 1", src.calls)
	}

	if st, _ := g.Check(ctx, "other@b.co"); st.Active {
		t.Error("unknown user should be inactive")
	}
	if src.calls != 2 {
		t.Errorf("backend calls = %d, want 2", src.calls)
	}

	clock = clock.Add(time.Minute)
	if _, err := g.Check(ctx, "a@b.co"); err != nil {
		t.Fatal(err)
	}
	if src.calls != 3 {
		t.Errorf("expired entry should be refetched, calls = %d", src.calls)
	}

	g.Invalidate("A@b.co")
	_, _ = g.Check(ctx, "a@b.co")
	if src.calls != 4 {
		t.Errorf("invalidated entry should be refetched, calls = %d", src.calls)
	}
}

func TestCheckErrorsAreNotCached(t *testing.T) {
	src := &fakeStatus{err: errors.New("backend down")}
	clock := now
	g := newTestGate(src, &clock)

	if _, err := g.Check(context.Background(), ""); !errors.Is(err, ErrNoEmail) {
		t.Errorf("err = %v, want ErrNoEmail", err)
	}
	for range 2 {
		if _, err := g.Check(context.Background(), "a@b.co"); err == nil {
			t.Error("expected error")
		}
	}
	if src.calls != 2 {
		t.Errorf("calls = %d, want 2", src.calls)
	}
}

func TestMiddleware(t *testing.T) {
	src := &fakeStatus{byUser: map[string]models.SubscriptionStatus{
		"paid@b.co":    {Status: "active"},
		"expired@b.co": {Status: "trialing", TrialEnd: now.Add(-time.Hour).Unix()},
	}}
	clock := now
	g := newTestGate(src, &clock)
	h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	tests := []struct {
		email string
		want  int
	}{
		{"paid@b.co", http.StatusTeapot},
		{"expired@b.co", http.StatusPaymentRequired},
		{"", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/report", nil)
		if tc.email != "" {
			req.Header.Set(HeaderEmail, tc.email)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%q: status = %d, want %d", tc.email, rec.Code, tc.want)
		}
	}

	src.err = errors.New("timeout")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/report", nil)
	req.Header.Set(HeaderEmail, "new@b.co")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("backend failure: status = %d, want 502", rec.Code)
	}
}
