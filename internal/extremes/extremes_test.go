package extremes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/seenimoa/cotscope/internal/store"
	"github.com/seenimoa/cotscope/pkg/models"
)

type fakeSource struct {
	calls   atomic.Int64
	mu      sync.Mutex
	data    map[string][]models.HistoryPoint
	failFor map[string]bool
}

func (f *fakeSource) CommercialHistory(_ context.Context, code string, limit int) ([]models.HistoryPoint, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[code] {
		return nil, fmt.Errorf("upstream 503 for %s", code)
	}
	return f.data[code], nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAnalyzer(src HistorySource, s store.Store, now *time.Time, sleeps *int) *Analyzer {
	return New(src, s, quietLogger(), nil, Options{
		Now: func() time.Time { return *now },
		Sleep: func(context.Context, time.Duration) error {
			*sleeps++
			return nil
		},
	})
}

func TestSummarizeSortsByDate(t *testing.T) {
	hist := []models.HistoryPoint{
		{ReportDate: "2024-04-23", Long: 100, Short: 50},
		{ReportDate: "2024-05-07", Long: 10, Short: 40}, // latest
		{ReportDate: "2024-04-30", Long: 300, Short: 100},
		{ReportDate: "2024-04-16T00:00:00.000", Long: 0, Short: 90},
	}
	rec, ok := Summarize(hist, 0)
	if !ok {
		t.Fatal("non-empty history reported empty")
	}
	want := models.ExtremesRecord{Max: 200, Min: -90, Current: -30}
	if rec != want {
		t.Errorf("Summarize = %+v, want %+v", rec, want)
	}

	if _, ok := Summarize(nil, 0); ok {
		t.Error("empty history should be omitted")
	}

	// Only the two most recent reports count.
	rec, _ = Summarize(hist, 2)
	if rec.Max != 200 || rec.Min != -30 {
		t.Errorf("limited = %+v", rec)
	}
}

func TestComputeCachesFor24Hours(t *testing.T) {
	src := &fakeSource{data: map[string][]models.HistoryPoint{
		"088691": {{ReportDate: "2024-05-07", Long: 100, Short: 40}},
		"067651": {{ReportDate: "2024-05-07", Long: 5, Short: 50}},
	}}
	s := store.NewMemoryStore()
	now := time.Date(2024, 5, 8, 12, 0, 0, 0, time.UTC)
	var sleeps int
	a := newTestAnalyzer(src, s, &now, &sleeps)
	ctx := context.Background()

	first, err := a.Compute(ctx, []string{"088691", "067651", "088691", ""})
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 2 || first["088691"].Current != 60 {
		t.Fatalf("first = %+v", first)
	}
	if n := src.calls.Load(); n != 2 {
		t.Fatalf("first call made %d fetches, want 2", n)
	}

	now = now.Add(23 * time.Hour)
	second, err := a.Compute(ctx, []string{"088691", "067651"})
	if err != nil {
		t.Fatal(err)
	}
	if n := src.calls.Load(); n != 2 {
		t.Errorf("second call within 24h made %d more fetches", n-2)
	}
	if second["067651"] != first["067651"] {
		t.Errorf("cached snapshot differs: %+v vs %+v", second, first)
	}

	now = now.Add(time.Hour)
	if _, err := a.Compute(ctx, []string{"088691"}); err != nil {
		t.Fatal(err)
	}
	if n := src.calls.Load(); n != 3 {
		t.Errorf("stale snapshot should refetch, calls = %d", n)
	}
}

func TestComputeBatchesAndSkipsFailures(t *testing.T) {
	data := make(map[string][]models.HistoryPoint)
	codes := make([]string, 0, 120)
	for i := range 120 {
		code := fmt.Sprintf("%06d", i)
		codes = append(codes, code)
		if i == 119 {
			continue // no history at all
		}
		data[code] = []models.HistoryPoint{{ReportDate: "2024-05-07", Long: int64(i), Short: 0}}
	}
	src := &fakeSource{data: data, failFor: map[string]bool{"000060": true}}
	now := time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)
	var sleeps int
	a := newTestAnalyzer(src, store.NewMemoryStore(), &now, &sleeps)

	got, err := a.Compute(context.Background(), codes)
	if err != nil {
		t.Fatal(err)
	}
	if sleeps != 2 {
		t.Errorf("sleeps = %d, want 2 for 3 batches", sleeps)
	}
	// Batch 50..99 failed, 119 had no history.
	if len(got) != 69 {
		t.Errorf("got %d contracts, want 69", len(got))
	}
	if _, ok := got["000075"]; ok {
		t.Error("contract from failed batch present")
	}
	if _, ok := got["000119"]; ok {
		t.Error("contract without history present")
	}
	if got["000110"].Current != 110 {
		t.Errorf("000110 = %+v", got["000110"])
	}
}

func TestComputePersistsSnapshot(t *testing.T) {
	src := &fakeSource{data: map[string][]models.HistoryPoint{
		"088691": {{ReportDate: "2024-05-07", Long: 100, Short: 40}},
	}}
	s := store.NewMemoryStore()
	now := time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)
	var sleeps int
	a := newTestAnalyzer(src, s, &now, &sleeps)

	if _, err := a.Compute(context.Background(), []string{"088691"}); err != nil {
		t.Fatal(err)
	}
	snap, ts, ok, err := store.GetJSON[map[string]models.ExtremesRecord](context.Background(), s, store.KeyExtremes)
	if err != nil || !ok {
		t.Fatalf("snapshot not persisted: %v %v", ok, err)
	}
	if !ts.Equal(now) || snap["088691"].Max != 60 {
		t.Errorf("snapshot = %+v at %v", snap, ts)
	}
}

func TestCorruptCacheIsAMiss(t *testing.T) {
	src := &fakeSource{data: map[string][]models.HistoryPoint{
		"088691": {{ReportDate: "2024-05-07", Long: 1, Short: 0}},
	}}
	s := store.NewMemoryStore()
	now := time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)
	_ = s.Set(context.Background(), store.KeyExtremes, store.Snapshot{Data: []byte("[[["), Timestamp: now})
	var sleeps int
	a := newTestAnalyzer(src, s, &now, &sleeps)

	got, err := a.Compute(context.Background(), []string{"088691"})
	if err != nil {
		t.Fatal(err)
	}
	if src.calls.Load() != 1 || got["088691"].Current != 1 {
		t.Errorf("corrupt cache not recomputed: calls=%d got=%+v", src.calls.Load(), got)
	}
}

func TestRefreshWithoutCodesKeepsSnapshot(t *testing.T) {
	src := &fakeSource{data: map[string][]models.HistoryPoint{}}
	s := store.NewMemoryStore()
	now := time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)
	var sleeps int
	a := newTestAnalyzer(src, s, &now, &sleeps)
	ctx := context.Background()

	got, err := a.Compute(ctx, []string{" ", ""})
	if err != nil || len(got) != 0 {
		t.Fatalf("Compute = %v, %v", got, err)
	}
	if _, _, ok, _ := store.GetJSON[map[string]models.ExtremesRecord](ctx, s, store.KeyExtremes); ok {
		t.Error("empty snapshot persisted")
	}

	old := map[string]models.ExtremesRecord{"088691": {Max: 5, Min: -5, Current: 1}}
	if err := store.PutJSON(ctx, s, store.KeyExtremes, old, now.Add(-48*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Refresh(ctx, nil); err != nil {
		t.Fatal(err)
	}
	snap, ts, ok, _ := store.GetJSON[map[string]models.ExtremesRecord](ctx, s, store.KeyExtremes)
	if !ok || len(snap) != 1 || !ts.Equal(now.Add(-48*time.Hour)) {
		t.Errorf("stored snapshot replaced: %+v at %v", snap, ts)
	}
	if src.calls.Load() != 0 {
		t.Errorf("history fetched %d times", src.calls.Load())
	}
}

func TestComputeCancelled(t *testing.T) {
	src := &fakeSource{data: map[string][]models.HistoryPoint{}}
	now := time.Now()
	var sleeps int
	a := newTestAnalyzer(src, store.NewMemoryStore(), &now, &sleeps)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.Compute(ctx, []string{"1", "2"}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestClassifyTracked(t *testing.T) {
	row := func(code string, long, short int64) models.NormalizedRow {
		return models.NormalizedRow{
			ContractCode: code,
			Commercial:   models.TraderPositions{Long: long, Short: short, Total: long + short},
		}
	}
	rows := []models.NormalizedRow{
		row("A", 1000, 40),  // net 960, max 1000 -> range 950
		row("B", 0, 980),    // net -980, min -1000 -> range -950
		row("C", 500, 500),  // net 0, in the middle
		row("D", 10, 0),     // no extremes entry
		row("E", 100, 1100), // net -1000, negative max and min
	}
	ext := map[string]models.ExtremesRecord{
		"A": {Max: 1000, Min: -1000},
		"B": {Max: 1000, Min: -1000},
		"C": {Max: 1000, Min: -1000},
		"E": {Max: -200, Min: -1000},
	}

	got := ClassifyTracked(rows, ext, DefaultThreshold)
	if len(got) != 4 {
		t.Fatalf("got %d rows, want 4 (D dropped)", len(got))
	}
	flags := map[string][2]bool{}
	for _, r := range got {
		flags[r.Row.ContractCode] = [2]bool{r.NearLong, r.NearShort}
	}
	want := map[string][2]bool{
		"A": {true, false},
		"B": {false, true},
		"C": {false, false},
		"E": {false, true},
	}
	for code, w := range want {
		if flags[code] != w {
			t.Errorf("%s: near long/short = %v, want %v", code, flags[code], w)
		}
	}

	tracked := Tracked(got)
	if len(tracked) != 3 {
		t.Errorf("Tracked = %d rows, want 3", len(tracked))
	}
}
