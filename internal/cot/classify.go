package cot

import (
	"fmt"
	"strings"

	"github.com/seenimoa/cotscope/pkg/models"
)

// Group is a commodity sector.
type Group string

const (
	GroupCurrencies    Group = "Currencies"
	GroupEnergies      Group = "Energies"
	GroupGrains        Group = "Grains"
	GroupMeats         Group = "Meats"
	GroupMetals        Group = "Metals"
	GroupSofts         Group = "Softs"
	GroupStockIndices  Group = "Stock Indices"
	GroupInterestRates Group = "Interest Rates"
	GroupDairy         Group = "Dairy"
	GroupOther         Group = "Other"
)

// AllGroups lists every label the classifier can return, Other last.
var AllGroups = []Group{
	GroupCurrencies, GroupEnergies, GroupGrains, GroupMeats, GroupMetals,
	GroupSofts, GroupStockIndices, GroupInterestRates, GroupDairy, GroupOther,
}

// ParseGroup matches a group label case-insensitively.
func ParseGroup(s string) (Group, error) {
	for _, g := range AllGroups {
		if strings.EqualFold(string(g), strings.TrimSpace(s)) {
			return g, nil
		}
	}
	return "", fmt.Errorf("unknown group %q", s)
}

// Classify maps a commodity name to its group. First match wins:
// exact override, then substring overrides in table order, then the keyword
// groups in declaration order. Anything unmatched is Other.
func (c *Curation) Classify(commodity string) Group {
	upper := strings.ToUpper(strings.TrimSpace(commodity))

	if g, ok := c.exact[upper]; ok {
		return g
	}
	for _, o := range c.substrings {
		if strings.Contains(upper, o.match) {
			return o.group
		}
	}
	for _, g := range c.groups {
		for _, kw := range g.keywords {
			if strings.Contains(upper, kw) {
				return g.group
			}
		}
	}
	return GroupOther
}

// GroupsPresent returns the groups that occur in rows, in declaration order,
// with Other appended last when any row falls through.
func (c *Curation) GroupsPresent(rows []models.NormalizedRow) []Group {
	present := make(map[Group]bool, len(AllGroups))
	for _, r := range rows {
		present[c.Classify(r.Commodity)] = true
	}

	var out []Group
	for _, g := range c.groups {
		if present[g.group] {
			out = append(out, g.group)
		}
	}
	if present[GroupOther] {
		out = append(out, GroupOther)
	}
	return out
}

// Filter keeps rows matching exchange and group. Empty arguments match all.
func (c *Curation) Filter(rows []models.NormalizedRow, exchange string, group Group) []models.NormalizedRow {
	out := make([]models.NormalizedRow, 0, len(rows))
	for _, r := range rows {
		if exchange != "" && !strings.EqualFold(r.MarketCode, exchange) {
			continue
		}
		if group != "" && c.Classify(r.Commodity) != group {
			continue
		}
		out = append(out, r)
	}
	return out
}
