package utils

import (
	"encoding/json"
	"math"
	"testing"
)

func TestToInt(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int64
	}{
		{"nil", nil, 0},
		{"float", 100.0, 100},
		{"numeric string", "140", 140},
		{"decimal string", "1200.0", 1200},
		{"leading zeros", "0088", 88},
		{"thousands separator", "1,250", 1250},
		{"padded", "  42 ", 42},
		{"negative", "-17", -17},
		{"garbage", "n/a", 0},
		{"empty", "", 0},
		{"json number", json.Number("77"), 77},
		{"NaN", math.NaN(), 0},
		{"Inf", math.Inf(1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToInt(tt.in); got != tt.want {
				t.Errorf("ToInt(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestToFloat(t *testing.T) {
	if got := ToFloat("12.5"); got != 12.5 {
		t.Errorf("ToFloat(\"12.5\") = %v", got)
	}
	if got := ToFloat(map[string]any{}); got != 0 {
		t.Errorf("ToFloat(map) = %v, want 0", got)
	}
}

func TestRatio(t *testing.T) {
	if got := Ratio(1, 0); got != 0 {
		t.Errorf("Ratio(1, 0) = %v, want 0", got)
	}
	if got := Ratio(1, 4); got != 0.25 {
		t.Errorf("Ratio(1, 4) = %v, want 0.25", got)
	}
}
