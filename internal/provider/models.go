package provider

// ModelType identifies a kind of upstream data. Each ModelType maps to a
// specific data structure in pkg/models/.
type ModelType string

// --- Commitment of Traders ---
const (
	ModelCOTDates           ModelType = "COTDates"           // []string, newest first
	ModelCOTReport          ModelType = "COTReport"          // []models.RawReportRow for one report date
	ModelCOTHistory         ModelType = "COTHistory"         // []models.HistoryPoint for one contract
	ModelCOTReleaseSchedule ModelType = "COTReleaseSchedule" // []time.Time upcoming release dates
)

// --- Seasonality ---
const (
	ModelSeasonalityCandles ModelType = "SeasonalityCandles" // []models.Candle for one symbol
	ModelSeasonalityAssets  ModelType = "SeasonalityAssets"  // []models.SeasonalityAsset
)

// AllModels returns every model type, in display order.
func AllModels() []ModelType {
	return []ModelType{
		ModelCOTDates,
		ModelCOTReport,
		ModelCOTHistory,
		ModelCOTReleaseSchedule,
		ModelSeasonalityCandles,
		ModelSeasonalityAssets,
	}
}

// ModelCategory returns the display category of a model type.
func ModelCategory(m ModelType) string {
	switch m {
	case ModelCOTDates, ModelCOTReport, ModelCOTHistory, ModelCOTReleaseSchedule:
		return "Commitment of Traders"
	case ModelSeasonalityCandles, ModelSeasonalityAssets:
		return "Seasonality"
	default:
		return "Unknown"
	}
}
