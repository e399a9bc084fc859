// Package limits holds the per-category monthly spending limits.
//
// A Table is immutable once built and is passed to the write pipeline at
// construction, so deployments can override limits without code changes.
package limits

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Entry is one category and its monthly limit. A zero limit means the
// category is never evaluated.
type Entry struct {
	Category     string          `json:"category" yaml:"category"`
	MonthlyLimit decimal.Decimal `json:"monthlyLimit" yaml:"-"`
}

type Table struct {
	entries map[string]decimal.Decimal
	order   []string
}

// defaultLimits are the household categories the ledger ships with.
var defaultLimits = []struct {
	category string
	limit    int64
}{
	{"Groceries & Vegetables", 8000},
	{"Milk & Dairy", 2000},
	{"House Rent / Home EMI", 10000},
	{"Maintenance & Society Charges", 1000},
	{"Electricity & Water", 1500},
	{"LPG / Cooking Gas", 1000},
	{"Mobile & Internet", 1000},
	{"Education & Fees", 50000},
	{"Medical & Pharmacy", 5000},
	{"Insurance (Life/Health)", 2500},
	{"Local Transport", 1500},
	{"Fuel & Vehicle Running", 3000},
	{"Eating Out & Restaurants", 2000},
	{"Entertainment & Subscriptions", 1000},
	{"Clothing & Footwear", 1500},
	{"Household Items & Appliances", 1500},
	{"EMIs & Other Loans", 3000},
	{"Savings & Investments", 0},
	{"Miscellaneous / Others", 1500},
}

// Default returns the built-in limit table.
func Default() *Table {
	entries := make([]Entry, 0, len(defaultLimits))
	for _, l := range defaultLimits {
		entries = append(entries, Entry{Category: l.category, MonthlyLimit: decimal.NewFromInt(l.limit)})
	}
	t, err := New(entries)
	if err != nil {
		panic(err)
	}
	return t
}

// New builds a table. Every category must appear exactly once and no limit
// may be negative.
func New(entries []Entry) (*Table, error) {
	t := &Table{entries: make(map[string]decimal.Decimal, len(entries))}
	for _, e := range entries {
		name := strings.TrimSpace(e.Category)
		if name == "" {
			return nil, fmt.Errorf("limit entry with empty category")
		}
		if _, dup := t.entries[name]; dup {
			return nil, fmt.Errorf("duplicate limit entry for category %q", name)
		}
		if e.MonthlyLimit.IsNegative() {
			return nil, fmt.Errorf("negative limit for category %q", name)
		}
		t.entries[name] = e.MonthlyLimit
		t.order = append(t.order, name)
	}
	return t, nil
}

// LimitFor returns the monthly limit for category. Unknown categories are
// reported as absent, not as an error.
func (t *Table) LimitFor(category string) (decimal.Decimal, bool) {
	if t == nil {
		return decimal.Zero, false
	}
	l, ok := t.entries[category]
	return l, ok
}

// Entries returns a copy of the table in declaration order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.order))
	for _, c := range t.order {
		out = append(out, Entry{Category: c, MonthlyLimit: t.entries[c]})
	}
	return out
}

// Len returns the number of categories.
func (t *Table) Len() int {
	return len(t.order)
}

// fileFormat is the YAML layout accepted by LoadFile:
//
//	replace: false
//	limits:
//	  "Groceries & Vegetables": 9000
//	  "Pets": 1200
type fileFormat struct {
	Replace bool              `yaml:"replace"`
	Limits  map[string]string `yaml:"limits"`
}

// LoadFile reads limit overrides from a YAML file. Unless the file sets
// replace: true, its entries are merged over the default table.
func LoadFile(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read limits file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes the YAML format described on LoadFile.
func Parse(raw []byte) (*Table, error) {
	var f fileFormat
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode limits yaml: %w", err)
	}

	var entries []Entry
	seen := map[string]bool{}
	if !f.Replace {
		for _, e := range Default().Entries() {
			if v, ok := f.Limits[e.Category]; ok {
				d, err := decimal.NewFromString(strings.TrimSpace(v))
				if err != nil {
					return nil, fmt.Errorf("limit for %q: %w", e.Category, err)
				}
				e.MonthlyLimit = d
			}
			entries = append(entries, e)
			seen[e.Category] = true
		}
	}

	extra := make([]string, 0, len(f.Limits))
	for c := range f.Limits {
		if !seen[strings.TrimSpace(c)] {
			extra = append(extra, c)
		}
	}
	sort.Strings(extra)
	for _, c := range extra {
		d, err := decimal.NewFromString(strings.TrimSpace(f.Limits[c]))
		if err != nil {
			return nil, fmt.Errorf("limit for %q: %w", c, err)
		}
		entries = append(entries, Entry{Category: c, MonthlyLimit: d})
	}

	return New(entries)
}
