package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/seenimoa/cotscope/internal/infra"
	"github.com/seenimoa/cotscope/internal/provider"
	"github.com/seenimoa/cotscope/pkg/models"
)

func newTestServer(t *testing.T, mux *http.ServeMux) *Provider {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(srv.URL, srv.Client())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestProviderInfo(t *testing.T) {
	p := New("", nil)
	info := p.Info()
	if info.Name != "backend" {
		t.Errorf("expected name backend, got %s", info.Name)
	}
	if p.BaseURL() != DefaultBaseURL {
		t.Errorf("base url = %s", p.BaseURL())
	}
	want := []provider.ModelType{
		provider.ModelCOTDates,
		provider.ModelCOTReport,
		provider.ModelSeasonalityCandles,
		provider.ModelSeasonalityAssets,
	}
	got := p.SupportedModels()
	if len(got) != len(want) {
		t.Fatalf("supported = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("model[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestDatesFetcherCaches(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/cftc/dates", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, map[string]any{"success": true, "dates": []string{"2024-05-07", " ", "2024-04-30"}})
	})
	p := newTestServer(t, mux)
	f := p.Fetcher(provider.ModelCOTDates)

	res, err := f.Fetch(context.Background(), provider.QueryParams{})
	if err != nil {
		t.Fatal(err)
	}
	dates := res.Data.([]string)
	if len(dates) != 2 || dates[0] != "2024-05-07" {
		t.Errorf("dates = %v", dates)
	}

	res, err = f.Fetch(context.Background(), provider.QueryParams{})
	if err != nil || !res.Cached {
		t.Errorf("second fetch cached=%v err=%v", res != nil && res.Cached, err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}
}

func TestDatesFetcherUnsuccessful(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/cftc/dates", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"success": false, "message": "db down"})
	})
	p := newTestServer(t, mux)

	_, err := p.Fetcher(provider.ModelCOTDates).Fetch(context.Background(), nil)
	if !errors.Is(err, ErrUnsuccessful) {
		t.Errorf("err = %v, want ErrUnsuccessful", err)
	}
}

func TestReportFetcherQueryFormat(t *testing.T) {
	var gotDate string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/cftc/data", func(w http.ResponseWriter, r *http.Request) {
		gotDate = r.URL.Query().Get("report_date")
		w.Write([]byte(`{"data":[{"contract_market_name":"GOLD","cftc_contract_market_code":"088691",
			"cftc_market_code":"CMX","comm_positions_long_all":"100","comm_positions_short_all":40}]}`))
	})
	p := newTestServer(t, mux)

	res, err := p.Fetcher(provider.ModelCOTReport).Fetch(context.Background(),
		provider.QueryParams{provider.ParamReportDate: "2024-05-07"})
	if err != nil {
		t.Fatal(err)
	}
	if gotDate != "2024-05-07 00:00:00.000" {
		t.Errorf("report_date = %q", gotDate)
	}
	rows := res.Data.([]models.RawReportRow)
	if len(rows) != 1 || rows[0].ContractMarketName != "GOLD" {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].CommLong != "100" || rows[0].CommShort != float64(40) {
		t.Errorf("raw numeric fields = %#v / %#v", rows[0].CommLong, rows[0].CommShort)
	}
}

func TestCandlesAndAssets(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/seasonality_data", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "GC=F" {
			http.Error(w, "unknown symbol", http.StatusNotFound)
			return
		}
		writeJSON(w, []models.Candle{{Time: 1700000000, Open: 1, High: 2, Low: 0.5, Close: 1.5}})
	})
	mux.HandleFunc("/seasonality_assets", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"assets":["SPY",{"symbol":"GC=F","name":"Gold","category":"Metals"},{"name":"no symbol"},""]}`))
	})
	p := newTestServer(t, mux)
	ctx := context.Background()

	res, err := p.Fetcher(provider.ModelSeasonalityCandles).Fetch(ctx, provider.QueryParams{provider.ParamSymbol: "GC=F"})
	if err != nil {
		t.Fatal(err)
	}
	if c := res.Data.([]models.Candle); len(c) != 1 || c[0].Close != 1.5 {
		t.Errorf("candles = %+v", c)
	}

	_, err = p.Fetcher(provider.ModelSeasonalityCandles).Fetch(ctx, provider.QueryParams{provider.ParamSymbol: "NOPE"})
	var httpErr *infra.ErrHTTP
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusNotFound {
		t.Errorf("err = %v, want HTTP 404", err)
	}

	res, err = p.Fetcher(provider.ModelSeasonalityAssets).Fetch(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	assets := res.Data.([]models.SeasonalityAsset)
	if len(assets) != 2 || assets[0].Symbol != "SPY" || assets[1].Name != "Gold" {
		t.Errorf("assets = %+v", assets)
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	var saved map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("GET /preferences/favorites", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("email") != "a@b.co" {
			t.Errorf("email query = %q", r.URL.Query().Get("email"))
		}
		writeJSON(w, map[string]any{"success": true, "favorites": map[string]any{"selected": []string{"088691"}}})
	})
	mux.HandleFunc("POST /preferences/table_filters", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &saved)
		writeJSON(w, models.ActionResult{Success: true})
	})
	p := newTestServer(t, mux)
	ctx := context.Background()

	favs, err := p.Favorites(ctx, "a@b.co")
	if err != nil || len(favs) != 1 || favs[0] != "088691" {
		t.Errorf("favorites = %v, %v", favs, err)
	}

	if err := p.SaveTableFilters(ctx, "a@b.co", nil); err != nil {
		t.Fatal(err)
	}
	tf, _ := saved["table_filters"].(map[string]any)
	if saved["email"] != "a@b.co" || tf == nil {
		t.Errorf("payload = %v", saved)
	}
	if sel, ok := tf["selected"].([]any); !ok || len(sel) != 0 {
		t.Errorf("selected = %#v, want empty list", tf["selected"])
	}
	if _, ok := saved["favorites"]; ok {
		t.Error("favorites key should be omitted when saving table filters")
	}
}

func TestPayloadValidation(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, models.ActionResult{Success: true})
	})
	p := newTestServer(t, mux)
	ctx := context.Background()

	calls := []func() error{
		func() error { _, err := p.Permissions(ctx, Credentials{Email: "not-an-email", Password: "secret1"}); return err },
		func() error { _, err := p.Permissions(ctx, Credentials{Email: "a@b.co", Password: "123"}); return err },
		func() error { _, err := p.Verify(ctx, CodeCheck{Email: "a@b.co"}); return err },
		func() error { _, err := p.Ask(ctx, ChatRequest{Email: "a@b.co"}); return err },
		func() error {
			_, err := p.SubmitHelp(ctx, HelpRequest{Type: "rant", Subject: "s", Message: "m", UserEmail: "a@b.co"})
			return err
		},
		func() error { return p.SaveFavorites(ctx, "", []string{"1"}) },
	}
	for i, call := range calls {
		if err := call(); !errors.Is(err, infra.ErrValidation) {
			t.Errorf("call %d: err = %v, want ErrValidation", i, err)
		}
	}
	if hits.Load() != 0 {
		t.Errorf("invalid payloads reached the server %d times", hits.Load())
	}
}

func TestAuthAndBillingEndpoints(t *testing.T) {
	var paths []string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /", func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		writeJSON(w, models.ActionResult{Success: true, Message: "ok"})
	})
	mux.HandleFunc("GET /subscription-status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, models.SubscriptionStatus{Success: true, Status: "trialing", TrialEnd: 1893456000})
	})
	p := newTestServer(t, mux)
	ctx := context.Background()
	email := "trader@example.com"

	steps := []func() (models.ActionResult, error){
		func() (models.ActionResult, error) {
			return p.Permissions(ctx, Credentials{Email: email, Password: "hunter22"})
		},
		func() (models.ActionResult, error) { return p.Verify(ctx, CodeCheck{Email: email, Code: "123456"}) },
		func() (models.ActionResult, error) { return p.ResendCode(ctx, email) },
		func() (models.ActionResult, error) { return p.RequestPasswordReset(ctx, email) },
		func() (models.ActionResult, error) { return p.VerifyResetCode(ctx, CodeCheck{Email: email, Code: "1"}) },
		func() (models.ActionResult, error) {
			return p.ResetPassword(ctx, PasswordReset{Email: email, Code: "1", NewPassword: "longenough"})
		},
		func() (models.ActionResult, error) {
			return p.CreateSubscription(ctx, SubscriptionRequest{Email: email}, true)
		},
		func() (models.ActionResult, error) {
			return p.CreateSubscription(ctx, SubscriptionRequest{Email: email}, false)
		},
		func() (models.ActionResult, error) {
			return p.UpdatePaymentMethod(ctx, SubscriptionRequest{Email: email, PaymentMethodID: "pm_1"})
		},
		func() (models.ActionResult, error) { return p.CancelSubscription(ctx, email) },
		func() (models.ActionResult, error) {
			return p.SubmitHelp(ctx, HelpRequest{Type: "bug", Subject: "s", Message: "m", UserEmail: email})
		},
	}
	for i, step := range steps {
		res, err := step()
		if err != nil || !res.Success {
			t.Errorf("step %d: %+v, %v", i, res, err)
		}
	}

	want := []string{
		"/permissions", "/verify", "/resend-code", "/request-password-reset", "/verify-reset-code",
		"/reset-password", "/create-subscription", "/create-subscription-no-trial",
		"/update-payment-method", "/cancel-subscription", "/api/help/submit",
	}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v", paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("path[%d] = %s, want %s", i, paths[i], want[i])
		}
	}

	st, err := p.SubscriptionStatus(ctx, email)
	if err != nil || st.Status != "trialing" || st.TrialEndTime().Year() != 2030 {
		t.Errorf("status = %+v, %v", st, err)
	}
}

func TestAsk(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/ai/chat", func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Question == "fail" {
			writeJSON(w, models.ChatAnswer{Success: false, Error: "model overloaded"})
			return
		}
		writeJSON(w, models.ChatAnswer{Success: true, Answer: "Commercials are net long.", Queries: []string{"SELECT 1"}})
	})
	p := newTestServer(t, mux)
	ctx := context.Background()

	ans, err := p.Ask(ctx, ChatRequest{Question: "Gold?", Email: "a@b.co"})
	if err != nil || ans.Answer == "" || len(ans.Queries) != 1 {
		t.Errorf("answer = %+v, %v", ans, err)
	}
	if _, err := p.Ask(ctx, ChatRequest{Question: "fail", Email: "a@b.co"}); !errors.Is(err, ErrUnsuccessful) {
		t.Errorf("err = %v, want ErrUnsuccessful", err)
	}
}
