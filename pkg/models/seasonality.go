package models

import "time"

// Candle is one daily price point as served by the seasonality endpoint.
// Time is Unix seconds.
type Candle struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high,omitempty"`
	Low   float64 `json:"low,omitempty"`
	Close float64 `json:"close"`
}

// UTC returns the candle timestamp as a UTC time.
func (c Candle) UTC() time.Time {
	return time.Unix(c.Time, 0).UTC()
}

// SeasonalityAsset is one entry of the seasonality asset catalogue.
type SeasonalityAsset struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// SeasonalityResult is the cumulative calendar-day profile of a symbol.
type SeasonalityResult struct {
	Symbol            string       `json:"symbol,omitempty"`
	DailySeasonality  [365]float64 `json:"dailySeasonality"`  // index, 100 at day 0
	MonthStartIndices [12]int      `json:"monthStartIndices"` // day-of-year index of each month's first day
	WeekdayReturns    [5]float64   `json:"weekdayReturns"`    // Mon..Fri average (close-open)/open
	MonthlyReturns    [12]float64  `json:"monthlyReturns"`    // Jan..Dec average month open-to-close
	YearsUsed         []int        `json:"yearsUsed"`
	CandlesUsed       int          `json:"candlesUsed"`
	WindowStart       time.Time    `json:"windowStart"`
	WindowEnd         time.Time    `json:"windowEnd"`
}
