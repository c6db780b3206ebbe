package extremes

import (
	"math"

	"github.com/seenimoa/cotscope/pkg/models"
)

// TrackedRow is a report row paired with its historical envelope.
type TrackedRow struct {
	Row        models.NormalizedRow  `json:"row"`
	Extremes   models.ExtremesRecord `json:"extremes"`
	CurrentNet int64                 `json:"current_net"`
	NearLong   bool                  `json:"near_long_extreme"`
	NearShort  bool                  `json:"near_short_extreme"`
}

// Tracked reports whether the row is near either extreme.
func (t TrackedRow) Tracked() bool { return t.NearLong || t.NearShort }

// ClassifyTracked flags rows whose current net commercial position lies
// within threshold of the historical max or min. Rows without an extremes
// entry are dropped.
func ClassifyTracked(rows []models.NormalizedRow, extremes map[string]models.ExtremesRecord, threshold float64) []TrackedRow {
	out := make([]TrackedRow, 0, len(rows))
	for _, r := range rows {
		ext, ok := extremes[r.ContractCode]
		if !ok {
			continue
		}
		net := r.Commercial.Net()
		maxRange := float64(ext.Max) - math.Abs(float64(ext.Max))*threshold
		minRange := float64(ext.Min) + math.Abs(float64(ext.Min))*threshold
		out = append(out, TrackedRow{
			Row:        r,
			Extremes:   ext,
			CurrentNet: net,
			NearLong:   float64(net) >= maxRange,
			NearShort:  float64(net) <= minRange,
		})
	}
	return out
}

// Tracked keeps only the rows near an extreme.
func Tracked(rows []TrackedRow) []TrackedRow {
	var out []TrackedRow
	for _, r := range rows {
		if r.Tracked() {
			out = append(out, r)
		}
	}
	return out
}
