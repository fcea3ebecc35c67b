package fetcher

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind identifies one category of per-symbol data the provider can return.
type Kind string

const (
	// KindPriceIntraday1m is today's one-minute price bars.
	KindPriceIntraday1m Kind = "price_intraday_1m"
	// KindPriceDaily is today's daily bar.
	KindPriceDaily Kind = "price_daily"
	// KindPriceDailyHistory is the multi-year daily bar history.
	KindPriceDailyHistory Kind = "price_daily_history"
	// KindIntradayTicks is the intraday matched-order tick page.
	KindIntradayTicks Kind = "intraday_ticks"
	// KindFinancialStatement is the balance sheet, income statement and cash flow triad.
	KindFinancialStatement Kind = "financial_statement"
	// KindCompanyProfile is the merged company overview and profile.
	KindCompanyProfile Kind = "company_profile"
)

// ErrNoKinds is returned when a run is requested without any kinds to fetch.
var ErrNoKinds = errors.New("no fetch kinds requested")

// allKinds is the canonical fetch order.
var allKinds = []Kind{
	KindPriceIntraday1m,
	KindPriceDaily,
	KindPriceDailyHistory,
	KindIntradayTicks,
	KindFinancialStatement,
	KindCompanyProfile,
}

var kindTables = map[Kind]string{
	KindPriceIntraday1m:    "price_data",
	KindPriceDaily:         "price_data_daily",
	KindPriceDailyHistory:  "price_data_daily_all",
	KindIntradayTicks:      "intraday_data",
	KindFinancialStatement: "finance_data",
	KindCompanyProfile:     "company_info",
}

// AllKinds returns every known kind in canonical order.
func AllKinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// Table returns the storage table the kind is persisted into.
func (k Kind) Table() string {
	return kindTables[k]
}

// Valid reports whether k is one of the enumerated kinds.
func (k Kind) Valid() bool {
	_, ok := kindTables[k]
	return ok
}

func (k Kind) String() string {
	return string(k)
}

func (k Kind) order() int {
	for i, known := range allKinds {
		if known == k {
			return i
		}
	}
	return len(allKinds)
}

// ParseKind resolves a kind name or its table name, case-insensitively.
func ParseKind(name string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, k := range allKinds {
		if n == string(k) || n == kindTables[k] {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown fetch kind %q", name)
}

// ParseKinds resolves a list of kind names into a de-duplicated, canonically
// ordered set. An empty list or any unknown name is an error.
func ParseKinds(names []string) ([]Kind, error) {
	if len(names) == 0 {
		return nil, ErrNoKinds
	}

	seen := make(map[Kind]bool, len(names))
	var invalid []string
	for _, name := range names {
		k, err := ParseKind(name)
		if err != nil {
			invalid = append(invalid, name)
			continue
		}
		seen[k] = true
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid fetch kinds %v, must be one of %v", invalid, allKinds)
	}

	kinds := make([]Kind, 0, len(seen))
	for k := range seen {
		kinds = append(kinds, k)
	}
	SortKinds(kinds)
	return kinds, nil
}

// SortKinds orders kinds canonically in place.
func SortKinds(kinds []Kind) {
	sort.Slice(kinds, func(i, j int) bool { return kinds[i].order() < kinds[j].order() })
}
