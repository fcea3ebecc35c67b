// Package schedule decides which kinds a scheduled run fetches on a given day.
package schedule

import (
	"time"

	"marketloader/internal/fetcher"
)

// quarterStartDay is the day of month on which quarterly data is refreshed.
const quarterStartDay = 11

// Decision is the fetch decision for one day.
type Decision struct {
	Skip   bool
	Reason string
	Kinds  []fetcher.Kind
}

var (
	tradingKinds = []fetcher.Kind{
		fetcher.KindPriceIntraday1m,
		fetcher.KindPriceDaily,
		fetcher.KindIntradayTicks,
	}
	quarterlyKinds = []fetcher.Kind{
		fetcher.KindFinancialStatement,
		fetcher.KindCompanyProfile,
	}
)

// IsQuarterStart reports whether now is the refresh day of a quarter
// (the 11th of January, April, July or October).
func IsQuarterStart(now time.Time) bool {
	if now.Day() != quarterStartDay {
		return false
	}
	switch now.Month() {
	case time.January, time.April, time.July, time.October:
		return true
	}
	return false
}

// Plan selects the kinds to fetch. Sundays are skipped unless they fall on
// a quarter start. An empty database gets price and tick data only. Other
// days get price and tick data, plus statements and profiles on quarter
// starts.
func Plan(now time.Time, hasData bool) Decision {
	quarterStart := IsQuarterStart(now)
	sunday := now.Weekday() == time.Sunday

	switch {
	case sunday && !quarterStart:
		return Decision{Skip: true, Reason: "weekend"}
	case !hasData:
		return Decision{Reason: "initial load", Kinds: clone(tradingKinds)}
	case sunday:
		return Decision{Reason: "quarter start", Kinds: clone(quarterlyKinds)}
	case quarterStart:
		return Decision{Reason: "trading day, quarter start", Kinds: clone(append(clone(tradingKinds), quarterlyKinds...))}
	default:
		return Decision{Reason: "trading day", Kinds: clone(tradingKinds)}
	}
}

func clone(kinds []fetcher.Kind) []fetcher.Kind {
	out := make([]fetcher.Kind, len(kinds))
	copy(out, kinds)
	fetcher.SortKinds(out)
	return out
}
