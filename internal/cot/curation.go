// Package cot turns raw Commitment of Traders rows into the curated, typed
// and grouped records the dashboard views are built from. All functions are
// pure: they take a Curation table and input rows and return new values.
package cot

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/seenimoa/cotscope/pkg/models"
)

//go:embed tables.yaml
var defaultTables []byte

// tables is the YAML shape of a curation file.
type tables struct {
	Version              int               `yaml:"version"`
	ExchangeAliases      map[string]string `yaml:"exchange_aliases"`
	RemovedExchangeCodes []string          `yaml:"removed_exchange_codes"`
	RemovedSubstrings    []string          `yaml:"removed_substrings"`
	RemovedCommodities   []string          `yaml:"removed_commodities"`
	ExactOverrides       map[string]string `yaml:"exact_overrides"`
	SubstringOverrides   []struct {
		Match string `yaml:"match"`
		Group string `yaml:"group"`
	} `yaml:"substring_overrides"`
	Groups []struct {
		Name     string   `yaml:"name"`
		Keywords []string `yaml:"keywords"`
	} `yaml:"groups"`
}

type substringOverride struct {
	match string
	group Group
}

type groupKeywords struct {
	group    Group
	keywords []string
}

// Curation is the compiled form of a curation table: exclusion rules,
// exchange consolidation and the group classifier's lookup tables.
type Curation struct {
	Version int

	aliases      map[string]string
	removedCodes map[string]struct{}
	removedNames map[string]struct{}
	removedSubs  []string
	exact        map[string]Group
	substrings   []substringOverride
	groups       []groupKeywords
}

var parseDefault = sync.OnceValues(func() (*Curation, error) {
	return Parse(defaultTables)
})

// Default returns the curation table compiled into the binary. The table is
// parsed once and shared, so callers must not modify it.
func Default() *Curation {
	c, err := parseDefault()
	if err != nil {
		panic(fmt.Sprintf("cot: embedded tables.yaml is invalid: %v", err))
	}
	return c
}

// LoadFile reads a curation table from path. An empty path yields Default().
func LoadFile(path string) (*Curation, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read curation file: %w", err)
	}
	return Parse(data)
}

// Parse compiles a YAML curation table.
func Parse(data []byte) (*Curation, error) {
	var t tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse curation tables: %w", err)
	}

	c := &Curation{
		Version:      t.Version,
		aliases:      make(map[string]string, len(t.ExchangeAliases)),
		removedCodes: make(map[string]struct{}, len(t.RemovedExchangeCodes)),
		removedNames: make(map[string]struct{}, 2*len(t.RemovedCommodities)),
		exact:        make(map[string]Group, len(t.ExactOverrides)),
	}

	for from, to := range t.ExchangeAliases {
		c.aliases[strings.ToUpper(strings.TrimSpace(from))] = strings.ToUpper(strings.TrimSpace(to))
	}
	for _, code := range t.RemovedExchangeCodes {
		c.removedCodes[strings.ToUpper(strings.TrimSpace(code))] = struct{}{}
	}
	for _, name := range t.RemovedCommodities {
		c.removedNames[strings.ToUpper(name)] = struct{}{}
		c.removedNames[NormalizeName(name)] = struct{}{}
	}
	for _, sub := range t.RemovedSubstrings {
		if sub = strings.ToUpper(strings.TrimSpace(sub)); sub != "" {
			c.removedSubs = append(c.removedSubs, sub)
		}
	}

	for name, g := range t.ExactOverrides {
		group, err := ParseGroup(g)
		if err != nil {
			return nil, fmt.Errorf("exact override %q: %w", name, err)
		}
		c.exact[strings.ToUpper(strings.TrimSpace(name))] = group
	}
	for _, o := range t.SubstringOverrides {
		group, err := ParseGroup(o.Group)
		if err != nil {
			return nil, fmt.Errorf("substring override %q: %w", o.Match, err)
		}
		c.substrings = append(c.substrings, substringOverride{match: strings.ToUpper(o.Match), group: group})
	}

	seen := make(map[Group]bool, len(t.Groups))
	for _, g := range t.Groups {
		group, err := ParseGroup(g.Name)
		if err != nil {
			return nil, err
		}
		if group == GroupOther {
			return nil, fmt.Errorf("group %q is the fallback and cannot have keywords", g.Name)
		}
		if seen[group] {
			return nil, fmt.Errorf("group %q declared twice", g.Name)
		}
		seen[group] = true
		kws := make([]string, 0, len(g.Keywords))
		for _, k := range g.Keywords {
			if k = strings.ToUpper(strings.TrimSpace(k)); k != "" {
				kws = append(kws, k)
			}
		}
		c.groups = append(c.groups, groupKeywords{group: group, keywords: kws})
	}

	return c, nil
}

// NormalizeName unifies en/em dashes to '-', collapses whitespace, trims and
// uppercases a commodity name.
func NormalizeName(name string) string {
	name = strings.NewReplacer("–", "-", "—", "-").Replace(name)
	return strings.ToUpper(strings.Join(strings.Fields(name), " "))
}

// ConsolidateExchange trims a market code and maps sub-exchange codes to
// their parent (ICEU, ICUS, IFED -> ICE).
func (c *Curation) ConsolidateExchange(code string) string {
	code = strings.TrimSpace(code)
	if to, ok := c.aliases[strings.ToUpper(code)]; ok {
		return to
	}
	return code
}

// Excluded reports whether an instrument is dropped from the dataset. The
// decision depends only on the market code and the commodity name.
func (c *Curation) Excluded(marketCode, commodity string) bool {
	if _, ok := c.removedCodes[strings.ToUpper(strings.TrimSpace(marketCode))]; ok {
		return true
	}

	upper := strings.ToUpper(commodity)
	normalized := NormalizeName(commodity)
	if _, ok := c.removedNames[upper]; ok {
		return true
	}
	if _, ok := c.removedNames[normalized]; ok {
		return true
	}

	for _, sub := range c.removedSubs {
		if strings.Contains(upper, sub) || strings.Contains(normalized, sub) {
			return true
		}
	}
	return false
}

// Exchanges returns the distinct market codes present in rows, sorted.
// Rows are expected to carry consolidated codes already.
func Exchanges(rows []models.NormalizedRow) []string {
	seen := make(map[string]struct{}, 8)
	var out []string
	for _, r := range rows {
		if r.MarketCode == "" {
			continue
		}
		if _, ok := seen[r.MarketCode]; ok {
			continue
		}
		seen[r.MarketCode] = struct{}{}
		out = append(out, r.MarketCode)
	}
	sort.Strings(out)
	return out
}
