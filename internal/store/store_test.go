package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFresh(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ttl := 24 * time.Hour

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"just written", ts, true},
		{"one hour later", ts.Add(time.Hour), true},
		{"one ns before ttl", ts.Add(ttl - 1), true},
		{"exactly ttl", ts.Add(ttl), false},
		{"two days later", ts.Add(48 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fresh(tt.now, ts, ttl); got != tt.want {
				t.Errorf("Fresh = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	if _, ok, err := s.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("Get(missing) = %v, %v", ok, err)
	}

	if err := PutJSON(ctx, s, "k", map[string]int{"a": 1}, ts); err != nil {
		t.Fatalf("PutJSON: %v", err)
	}
	got, gotTS, ok, err := GetJSON[map[string]int](ctx, s, "k")
	if err != nil || !ok {
		t.Fatalf("GetJSON: %v, %v", ok, err)
	}
	if got["a"] != 1 || !gotTS.Equal(ts) {
		t.Errorf("got %v at %v", got, gotTS)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("key survived Delete")
	}
}

func TestGetJSONCorrupt(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Set(ctx, "bad", Snapshot{Data: []byte("{not json"), Timestamp: time.Now()})

	_, _, ok, err := GetJSON[map[string]int](ctx, s, "bad")
	if ok {
		t.Error("corrupt snapshot reported ok")
	}
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("err = %v, want ErrCorrupt", err)
	}
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := OpenBadger(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	defer s.Close()

	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if err := PutJSON(ctx, s, KeyTheme, "dark", ts); err != nil {
		t.Fatalf("PutJSON: %v", err)
	}
	v, gotTS, ok, err := GetJSON[string](ctx, s, KeyTheme)
	if err != nil || !ok || v != "dark" || !gotTS.Equal(ts) {
		t.Fatalf("GetJSON = %q, %v, %v, %v", v, gotTS, ok, err)
	}

	if err := s.Delete(ctx, KeyTheme); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, KeyTheme); err != nil {
		t.Errorf("deleting missing key: %v", err)
	}
	if _, ok, err := s.Get(ctx, KeyTheme); ok || err != nil {
		t.Errorf("Get after delete = %v, %v", ok, err)
	}
}

func TestLocalState(t *testing.T) {
	ctx := context.Background()
	l := NewLocalState(NewMemoryStore())

	if l.Email(ctx) != "" || l.InitialFavorites(ctx) != nil {
		t.Fatal("fresh state should be empty")
	}

	_ = l.SetEmail(ctx, "trader@example.com")
	_ = l.SetUserName(ctx, "Trader")
	_ = l.SetTheme(ctx, "dark")
	_ = l.SetInitialFavorites(ctx, []string{"088691", "067651"})

	if l.Email(ctx) != "trader@example.com" || l.UserName(ctx) != "Trader" {
		t.Errorf("identity = %q / %q", l.Email(ctx), l.UserName(ctx))
	}
	if favs := l.InitialFavorites(ctx); len(favs) != 2 || favs[0] != "088691" {
		t.Errorf("favorites = %v", favs)
	}

	if err := l.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if l.Email(ctx) != "" || l.InitialFavorites(ctx) != nil {
		t.Error("Clear left user data behind")
	}
	if l.Theme(ctx) != "dark" {
		t.Error("Clear should keep the theme")
	}
}
