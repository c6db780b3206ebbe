// Package models defines the core data structures used throughout cotscope.
package models

// RawReportRow is one Commitment of Traders row as returned by the dashboard
// backend or the CFTC public reporting API. Numeric fields arrive as JSON
// numbers, numeric strings or null depending on the source, so they are kept
// untyped and coerced during normalization.
type RawReportRow struct {
	ReportDate         string `json:"report_date_as_yyyy_mm_dd,omitempty"`
	ReportDateAlt      string `json:"report_date,omitempty"` // backend flavour of the same field
	ContractMarketName string `json:"contract_market_name"`  // e.g., "GOLD"
	MarketAndExchange  string `json:"market_and_exchange_names,omitempty"`
	CommodityName      string `json:"commodity_name,omitempty"`
	ContractMarketCode string `json:"cftc_contract_market_code"` // e.g., "088691"
	MarketCode         string `json:"cftc_market_code"`          // e.g., "CMX", "ICEU"

	OpenInterest         any `json:"open_interest_all"`
	ChangeInOpenInterest any `json:"change_in_open_interest_all"`

	CommLong           any `json:"comm_positions_long_all"`
	CommShort          any `json:"comm_positions_short_all"`
	ChangeCommLong     any `json:"change_in_comm_long_all"`
	ChangeCommShort    any `json:"change_in_comm_short_all"`
	NonCommLong        any `json:"noncomm_positions_long_all"`
	NonCommShort       any `json:"noncomm_positions_short_all"`
	ChangeNonCommLong  any `json:"change_in_noncomm_long_all"`
	ChangeNonCommShort any `json:"change_in_noncomm_short_all"`
	NonReptLong        any `json:"nonrept_positions_long_all"`
	NonReptShort       any `json:"nonrept_positions_short_all"`
	ChangeNonReptLong  any `json:"change_in_nonrept_long_all"`
	ChangeNonReptShort any `json:"change_in_nonrept_short_all"`

	TotalReportableLong  any `json:"tot_rept_positions_long_all"`
	TotalReportableShort any `json:"tot_rept_positions_short"`

	PctOICommLong     any `json:"pct_of_oi_comm_long_all,omitempty"`
	PctOICommShort    any `json:"pct_of_oi_comm_short_all,omitempty"`
	PctOINonCommLong  any `json:"pct_of_oi_noncomm_long_all,omitempty"`
	PctOINonCommShort any `json:"pct_of_oi_noncomm_short_all,omitempty"`
	PctOINonReptLong  any `json:"pct_of_oi_nonrept_long_all,omitempty"`
	PctOINonReptShort any `json:"pct_of_oi_nonrept_short_all,omitempty"`
}

// Date returns whichever report date field the source populated.
func (r RawReportRow) Date() string {
	if r.ReportDate != "" {
		return r.ReportDate
	}
	return r.ReportDateAlt
}

// TraderPositions holds one trader category's positions for a report week.
type TraderPositions struct {
	Long            int64   `json:"long"`
	LongChange      int64   `json:"long_change"`
	Short           int64   `json:"short"`
	ShortChange     int64   `json:"short_change"`
	Total           int64   `json:"total"`            // Long + Short
	PercentageLong  float64 `json:"percentage_long"`  // Long / Total, 0 when Total == 0
	PercentageShort float64 `json:"percentage_short"` // Short / Total, 0 when Total == 0
	PctOfOILong     float64 `json:"pct_of_oi_long,omitempty"`
	PctOfOIShort    float64 `json:"pct_of_oi_short,omitempty"`
}

// Net returns long minus short.
func (p TraderPositions) Net() int64 {
	return p.Long - p.Short
}

// NormalizedRow is the flat, typed record derived from a RawReportRow.
type NormalizedRow struct {
	Commodity    string `json:"commodity"`
	ContractCode string `json:"contract_code"`
	MarketCode   string `json:"market_code"` // trimmed and consolidated (ICEU/ICUS/IFED -> ICE)
	ReportDate   string `json:"report_date"`

	Commercial    TraderPositions `json:"commercial"`
	NonCommercial TraderPositions `json:"non_commercial"`
	NonReportable TraderPositions `json:"non_reportable"`

	OpenInterest         int64 `json:"open_interest"`
	ChangeInOpenInterest int64 `json:"change_in_open_interest"`
	TotalReportableLong  int64 `json:"total_reportable_long"`
	TotalReportableShort int64 `json:"total_reportable_short"`
	NonReportableLong    int64 `json:"non_reportable_long"`
	NonReportableShort   int64 `json:"non_reportable_short"`
}

// HistoryPoint is one week of commercial positioning for a contract.
type HistoryPoint struct {
	ReportDate string `json:"report_date"` // YYYY-MM-DD
	Long       int64  `json:"long"`
	Short      int64  `json:"short"`
}

// Net returns long minus short.
func (h HistoryPoint) Net() int64 {
	return h.Long - h.Short
}

// ExtremesRecord is the historical net-commercial-position envelope of a contract.
type ExtremesRecord struct {
	Max     int64 `json:"max"`
	Min     int64 `json:"min"`
	Current int64 `json:"current"`
}
