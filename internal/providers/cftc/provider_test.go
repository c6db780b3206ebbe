package cftc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/seenimoa/cotscope/internal/extremes"
	"github.com/seenimoa/cotscope/internal/provider"
	"github.com/seenimoa/cotscope/pkg/models"
)

// Compile-time check: the provider feeds the extremes analyzer.
var _ extremes.HistorySource = (*Provider)(nil)

func TestProviderInfo(t *testing.T) {
	p := New(Options{})
	info := p.Info()
	if info.Name != "cftc" {
		t.Errorf("expected name cftc, got %s", info.Name)
	}
	if len(info.Credentials) != 1 || info.Credentials[0].Required {
		t.Errorf("app token should be a single optional credential: %+v", info.Credentials)
	}
	supported := p.SupportedModels()
	want := []provider.ModelType{
		provider.ModelCOTDates,
		provider.ModelCOTReport,
		provider.ModelCOTHistory,
		provider.ModelCOTReleaseSchedule,
	}
	if len(supported) != len(want) {
		t.Fatalf("supported = %v, want %v", supported, want)
	}
	for i := range want {
		if supported[i] != want[i] {
			t.Errorf("supported[%d] = %s, want %s", i, supported[i], want[i])
		}
	}
	if p.HasAppToken() {
		t.Error("no token configured")
	}
	if err := p.Init(map[string]string{credAppToken: " tok "}); err != nil {
		t.Fatal(err)
	}
	if !p.HasAppToken() {
		t.Error("Init should set the app token")
	}
}

func TestHistoryQuery(t *testing.T) {
	q, err := historyQuery("088691", "2020-01-01", "", 500)
	if err != nil {
		t.Fatal(err)
	}
	want := "SELECT report_date_as_yyyy_mm_dd, comm_positions_long_all, comm_positions_short_all " +
		"WHERE cftc_contract_market_code = '088691' AND report_date_as_yyyy_mm_dd >= '2020-01-01T00:00:00.000' " +
		"ORDER BY report_date_as_yyyy_mm_dd DESC LIMIT 500"
	if q != want {
		t.Errorf("query:\n got %s\nwant %s", q, want)
	}

	q, _ = historyQuery("O'X", "", "", 1)
	if !strings.Contains(q, "'O''X'") {
		t.Errorf("quote not escaped: %s", q)
	}

	if _, err := historyQuery("1", "yesterday", "", 1); err == nil {
		t.Error("expected error for bad date")
	}
}

func TestCommercialHistory(t *testing.T) {
	var hits atomic.Int32
	var gotQuery, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		gotQuery = r.URL.Query().Get("$query")
		gotToken = r.Header.Get("X-App-Token")
		// Socrata serves numbers as strings and does not guarantee order
		// once a proxy is involved.
		w.Write([]byte(`[
			{"report_date_as_yyyy_mm_dd":"2024-04-30T00:00:00.000","comm_positions_long_all":"300","comm_positions_short_all":"100"},
			{"report_date_as_yyyy_mm_dd":"2024-05-07T00:00:00.000","comm_positions_long_all":"10","comm_positions_short_all":"40"},
			{"comm_positions_long_all":"1"}
		]`))
	}))
	defer srv.Close()

	p := New(Options{BaseURL: srv.URL, AppToken: "secret", HTTPClient: srv.Client()})
	hist, err := p.CommercialHistory(context.Background(), "088691", 1000)
	if err != nil {
		t.Fatal(err)
	}
	if gotToken != "secret" {
		t.Errorf("X-App-Token = %q", gotToken)
	}
	if !strings.Contains(gotQuery, "cftc_contract_market_code = '088691'") || !strings.HasSuffix(gotQuery, "LIMIT 1000") {
		t.Errorf("$query = %s", gotQuery)
	}
	want := []models.HistoryPoint{
		{ReportDate: "2024-05-07", Long: 10, Short: 40},
		{ReportDate: "2024-04-30", Long: 300, Short: 100},
	}
	if len(hist) != len(want) {
		t.Fatalf("history = %+v", hist)
	}
	for i := range want {
		if hist[i] != want[i] {
			t.Errorf("hist[%d] = %+v, want %+v", i, hist[i], want[i])
		}
	}

	rec, ok := extremes.Summarize(hist, 0)
	if !ok || rec.Current != -30 || rec.Max != 200 {
		t.Errorf("summary = %+v", rec)
	}

	if _, err := p.CommercialHistory(context.Background(), "088691", 1000); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 1 {
		t.Errorf("second call should be cached, hits = %d", hits.Load())
	}
}

func TestHistoryFetcherValidatesParams(t *testing.T) {
	p := New(Options{BaseURL: "http://127.0.0.1:0"})
	f := p.Fetcher(provider.ModelCOTHistory)
	ctx := context.Background()

	if _, err := f.Fetch(ctx, provider.QueryParams{}); err == nil {
		t.Error("expected missing contract code error")
	}
	if _, err := f.Fetch(ctx, provider.QueryParams{provider.ParamContractCode: "1", provider.ParamLimit: "-3"}); err == nil {
		t.Error("expected invalid limit error")
	}
}

func TestDatesFetcher(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("$query")
		w.Write([]byte(`[
			{"report_date_as_yyyy_mm_dd":"2024-05-07T00:00:00.000"},
			{"report_date_as_yyyy_mm_dd":" "},
			{"report_date_as_yyyy_mm_dd":"2024-04-30T00:00:00.000"}
		]`))
	}))
	defer srv.Close()

	p := New(Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	res, err := p.Fetcher(provider.ModelCOTDates).Fetch(context.Background(), provider.QueryParams{})
	if err != nil {
		t.Fatal(err)
	}
	dates := res.Data.([]string)
	if len(dates) != 2 || dates[0] != "2024-05-07T00:00:00.000" || dates[1] != "2024-04-30T00:00:00.000" {
		t.Errorf("dates = %v", dates)
	}
	if !strings.Contains(gotQuery, "GROUP BY report_date_as_yyyy_mm_dd") ||
		!strings.Contains(gotQuery, "ORDER BY report_date_as_yyyy_mm_dd DESC") {
		t.Errorf("$query = %s", gotQuery)
	}
}

func TestReportFetcher(t *testing.T) {
	var hits atomic.Int32
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		gotQuery = r.URL.Query().Get("$query")
		w.Write([]byte(`[{
			"report_date_as_yyyy_mm_dd":"2024-05-07T00:00:00.000",
			"contract_market_name":"GOLD",
			"cftc_contract_market_code":"088691",
			"cftc_market_code":"CMX",
			"comm_positions_long_all":"300",
			"comm_positions_short_all":"100"
		}]`))
	}))
	defer srv.Close()

	p := New(Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	f := p.Fetcher(provider.ModelCOTReport)
	ctx := context.Background()

	res, err := f.Fetch(ctx, provider.QueryParams{provider.ParamReportDate: "2024-05-07"})
	if err != nil {
		t.Fatal(err)
	}
	rows := res.Data.([]models.RawReportRow)
	if len(rows) != 1 || rows[0].ContractMarketCode != "088691" || rows[0].MarketCode != "CMX" {
		t.Errorf("rows = %+v", rows)
	}
	if !strings.Contains(gotQuery, "report_date_as_yyyy_mm_dd = '2024-05-07T00:00:00.000'") {
		t.Errorf("$query = %s", gotQuery)
	}

	// The backend's timestamp form names the same report and hits the cache.
	if _, err := f.Fetch(ctx, provider.QueryParams{provider.ParamReportDate: "2024-05-07 00:00:00.000"}); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}

	if _, err := f.Fetch(ctx, provider.QueryParams{provider.ParamReportDate: "last week"}); err == nil {
		t.Error("expected error for unparseable date")
	}
}

const schedulePage = `<html><body>
<h2>2025 Release Schedule</h2>
<table>
  <tr><th>Month</th><th>Release Date</th><th>Data as of</th></tr>
  <tr><td>December</td><td>Friday, December 26*</td><td>December 23</td></tr>
</table>
<table>
  <caption>2026 Commitments of Traders Release Schedule</caption>
  <tr><th>Month</th><th>Release Date</th><th>Data as of</th></tr>
  <tr><td>January</td><td>January 2</td><td>December 30</td></tr>
  <tr><td>January</td><td>Friday, January 9</td><td>January 6</td></tr>
  <tr><td>January</td><td>1/16/2026</td><td>January 13</td></tr>
  <tr><td>January</td><td>January 9</td><td>January 6</td></tr>
  <tr><td>Note</td><td>TBD</td><td></td></tr>
</table>
</body></html>`

func TestParseSchedule(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(schedulePage))
	if err != nil {
		t.Fatal(err)
	}
	got := ParseSchedule(doc, 1999)
	want := []string{"2025-12-26", "2026-01-02", "2026-01-09", "2026-01-16"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i, w := range want {
		if d := got[i].Format("2006-01-02"); d != w {
			t.Errorf("date[%d] = %s, want %s", i, d, w)
		}
	}
}

func TestNextRelease(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(schedulePage))
	}))
	defer srv.Close()

	p := New(Options{ScheduleURL: srv.URL, HTTPClient: srv.Client()})
	ctx := context.Background()

	next, err := p.NextRelease(ctx, time.Date(2026, 1, 3, 15, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if next.Format("2006-01-02") != "2026-01-09" {
		t.Errorf("next = %s", next)
	}

	// Same-day release counts.
	next, _ = p.NextRelease(ctx, time.Date(2026, 1, 16, 20, 0, 0, 0, time.UTC))
	if next.Format("2006-01-02") != "2026-01-16" {
		t.Errorf("next = %s", next)
	}

	if _, err := p.NextRelease(ctx, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Error("expected error past the last scheduled release")
	}

	res, err := p.Fetcher(provider.ModelCOTReleaseSchedule).Fetch(ctx, provider.QueryParams{provider.ParamStartDate: "2026-01-10"})
	if err != nil {
		t.Fatal(err)
	}
	if dates := res.Data.([]time.Time); len(dates) != 1 {
		t.Errorf("upcoming = %v", dates)
	}
	if hits.Load() != 1 {
		t.Errorf("schedule page fetched %d times, want 1", hits.Load())
	}
}
