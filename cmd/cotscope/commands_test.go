package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/seenimoa/cotscope/internal/seasonality"
)

func newSeasonalityFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "seasonality"}
	c.Flags().Int("lookback", 0, "")
	c.Flags().String("cycle", "all", "")
	c.Flags().String("start", "", "")
	c.Flags().String("end", "", "")
	if err := c.Flags().Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return c
}

func TestSeasonalityParams(t *testing.T) {
	p, err := seasonalityParams(newSeasonalityFlags(t,
		"--lookback", "5", "--cycle", "Midterm", "--start", "2015-01-01", "--end", "2020-06-30"))
	if err != nil {
		t.Fatalf("seasonalityParams: %v", err)
	}
	if p.LookbackYears != 5 || p.Cycle != seasonality.CycleMidterm {
		t.Errorf("got lookback %d cycle %q", p.LookbackYears, p.Cycle)
	}
	if !p.Start.Equal(time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Start = %v", p.Start)
	}
	if !p.End.Equal(time.Date(2020, 6, 30, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("End = %v", p.End)
	}
}

func TestSeasonalityParamsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad cycle", []string{"--cycle", "leap"}},
		{"bad start", []string{"--start", "01/02/2020"}},
		{"bad end", []string{"--end", "2020-13-01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := seasonalityParams(newSeasonalityFlags(t, tt.args...)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"GOLD", 10, "GOLD"},
		{"0123456789", 10, "0123456789"},
		{"BRENT CRUDE OIL LAST DAY", 10, "BRENT C..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
