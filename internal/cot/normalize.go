package cot

import (
	"strings"

	"github.com/seenimoa/cotscope/pkg/models"
	"github.com/seenimoa/cotscope/pkg/utils"
)

// Normalize converts one report date's raw rows into typed rows, dropping
// excluded instruments. reportDate fills rows that carry no date of their own.
// A nil curation uses Default().
func Normalize(rows []models.RawReportRow, reportDate string, c *Curation) []models.NormalizedRow {
	if c == nil {
		c = Default()
	}
	out := make([]models.NormalizedRow, 0, len(rows))
	for _, r := range rows {
		name := DisplayName(r)
		if c.Excluded(r.MarketCode, name) {
			continue
		}
		out = append(out, NormalizeRow(r, reportDate, c))
	}
	return out
}

// NormalizeRow converts a single raw row without applying exclusion rules.
func NormalizeRow(r models.RawReportRow, reportDate string, c *Curation) models.NormalizedRow {
	date := r.Date()
	if strings.TrimSpace(date) == "" {
		date = reportDate
	}

	n := models.NormalizedRow{
		Commodity:    DisplayName(r),
		ContractCode: strings.TrimSpace(r.ContractMarketCode),
		MarketCode:   c.ConsolidateExchange(r.MarketCode),
		ReportDate:   utils.ShortDate(date),

		Commercial: positions(r.CommLong, r.ChangeCommLong, r.CommShort, r.ChangeCommShort,
			r.PctOICommLong, r.PctOICommShort),
		NonCommercial: positions(r.NonCommLong, r.ChangeNonCommLong, r.NonCommShort, r.ChangeNonCommShort,
			r.PctOINonCommLong, r.PctOINonCommShort),
		NonReportable: positions(r.NonReptLong, r.ChangeNonReptLong, r.NonReptShort, r.ChangeNonReptShort,
			r.PctOINonReptLong, r.PctOINonReptShort),

		OpenInterest:         utils.ToInt(r.OpenInterest),
		ChangeInOpenInterest: utils.ToInt(r.ChangeInOpenInterest),
		TotalReportableLong:  utils.ToInt(r.TotalReportableLong),
		TotalReportableShort: utils.ToInt(r.TotalReportableShort),
	}
	n.NonReportableLong = n.NonReportable.Long
	n.NonReportableShort = n.NonReportable.Short
	return n
}

// DisplayName picks the instrument name shown to users: the contract market
// name, else the commodity name, else the market part of
// "NAME - EXCHANGE".
func DisplayName(r models.RawReportRow) string {
	if s := strings.TrimSpace(r.ContractMarketName); s != "" {
		return s
	}
	if s := strings.TrimSpace(r.CommodityName); s != "" {
		return s
	}
	name, _, _ := strings.Cut(r.MarketAndExchange, " - ")
	return strings.TrimSpace(name)
}

func positions(long, longChange, short, shortChange, pctLong, pctShort any) models.TraderPositions {
	p := models.TraderPositions{
		Long:         utils.ToInt(long),
		LongChange:   utils.ToInt(longChange),
		Short:        utils.ToInt(short),
		ShortChange:  utils.ToInt(shortChange),
		PctOfOILong:  utils.ToFloat(pctLong),
		PctOfOIShort: utils.ToFloat(pctShort),
	}
	p.Total = p.Long + p.Short
	p.PercentageLong = utils.Ratio(p.Long, p.Total)
	p.PercentageShort = utils.Ratio(p.Short, p.Total)
	return p
}
