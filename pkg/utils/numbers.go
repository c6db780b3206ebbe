package utils

import (
	"math"
	"strings"

	"github.com/spf13/cast"
)

// ToFloat coerces a JSON-decoded value (float64, json.Number, numeric string,
// bool, nil) to float64. Anything unparseable, NaN or infinite yields 0.
func ToFloat(v any) float64 {
	if s, ok := v.(string); ok {
		v = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// ToInt coerces a JSON-decoded value to int64, truncating any fraction.
// Position counts are parsed through ToFloat so that "1200.0" and leading
// zeros are read as decimal.
func ToInt(v any) int64 {
	f := ToFloat(v)
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0
	}
	return int64(f)
}

// Ratio returns part/whole, or 0 when whole is 0.
func Ratio(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}
