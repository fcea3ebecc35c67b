package storage

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketloader/internal/fetcher"
	"marketloader/internal/models"
)

// TimeLayout is the canonical stored form of every time column.
const TimeLayout = "2006-01-02 15:04:05"

const dateLayout = "2006-01-02"

var timeLayouts = []string{
	TimeLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05-07:00",
	dateLayout,
}

// priceAliases maps provider column names onto the price schema.
var priceAliases = map[string]string{
	"openPrice":  "open",
	"highPrice":  "high",
	"lowPrice":   "low",
	"closePrice": "close",
	"value":      "volume",
}

var intradayAliases = map[string]string{
	"matchType":  "match_type",
	"matchPrice": "price",
	"matchVol":   "volume",
}

// companyColumns are the descriptive company_info columns in table order.
var companyColumns = []string{
	"company_name", "short_name", "exchange", "industry", "industry_id",
	"industry_id_v2", "company_type", "no_shareholders", "no_employees",
	"established_year", "outstanding_share", "issue_share", "foreign_percent",
	"company_profile", "history_dev", "company_promise", "business_risk",
	"key_developments",
}

// rename returns row with aliased columns renamed. An alias never
// overwrites a column that is already present under its canonical name.
func rename(row fetcher.Row, aliases map[string]string) fetcher.Row {
	out := make(fetcher.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	for from, to := range aliases {
		v, ok := out[from]
		if !ok {
			continue
		}
		if _, taken := out[to]; !taken {
			out[to] = v
		}
		delete(out, from)
	}
	return out
}

// NormalizePrices converts a price payload into bars, dropping rows without
// symbol or a parseable time and keeping the last row per (symbol, time).
func NormalizePrices(table fetcher.Table) []models.PriceBar {
	var bars []models.PriceBar
	index := make(map[string]int)

	for _, raw := range table {
		row := rename(raw, priceAliases)

		symbol := toString(row["symbol"])
		ts, ok := toTime(row["time"])
		if symbol == "" || !ok {
			continue
		}

		bar := models.PriceBar{
			Symbol: symbol,
			Time:   ts,
			Open:   toDecimalOrZero(row["open"]),
			High:   toDecimalOrZero(row["high"]),
			Low:    toDecimalOrZero(row["low"]),
			Close:  toDecimalOrZero(row["close"]),
			Volume: toInt64(row["volume"]),
		}

		key := symbol + "\x00" + ts
		if i, dup := index[key]; dup {
			bars[i] = bar
			continue
		}
		index[key] = len(bars)
		bars = append(bars, bar)
	}
	return bars
}

// NormalizeTicks converts an intraday tick payload, keyed by
// (symbol, time, match_type, id).
func NormalizeTicks(table fetcher.Table) []models.IntradayTick {
	var ticks []models.IntradayTick
	index := make(map[string]int)

	for _, raw := range table {
		row := rename(raw, intradayAliases)

		symbol := toString(row["symbol"])
		ts, ok := toTime(row["time"])
		id := toString(row["id"])
		matchType := toString(row["match_type"])
		if symbol == "" || !ok || id == "" || matchType == "" {
			continue
		}

		tick := models.IntradayTick{
			Symbol:    symbol,
			Time:      ts,
			ID:        id,
			Price:     toDecimalOrZero(row["price"]),
			Volume:    toInt64(row["volume"]),
			MatchType: matchType,
		}

		key := strings.Join([]string{symbol, ts, matchType, id}, "\x00")
		if i, dup := index[key]; dup {
			ticks[i] = tick
			continue
		}
		index[key] = len(ticks)
		ticks = append(ticks, tick)
	}
	return ticks
}

// NormalizeFacts converts long-form statement rows into facts. Rows missing
// any key column or a numeric value are dropped.
func NormalizeFacts(table fetcher.Table) []models.FinancialFact {
	var facts []models.FinancialFact
	index := make(map[string]int)

	for _, row := range table {
		symbol := toString(row["symbol"])
		reportType := toString(row["report_type"])
		field := toString(row["field"])
		year, okYear := toInt(row["year"])
		quarter, okQuarter := toInt(row["quarter"])
		value, okValue := toDecimal(row["value"])
		if symbol == "" || reportType == "" || field == "" || !okYear || !okQuarter || !okValue {
			continue
		}

		fact := models.FinancialFact{
			Symbol:     symbol,
			ReportType: reportType,
			Year:       year,
			Quarter:    quarter,
			Field:      field,
			Value:      value,
		}

		key := fmt.Sprintf("%s\x00%s\x00%d\x00%d\x00%s", symbol, reportType, year, quarter, field)
		if i, dup := index[key]; dup {
			facts[i] = fact
			continue
		}
		index[key] = len(facts)
		facts = append(facts, fact)
	}
	return facts
}

// NormalizeCompanies converts merged company rows, keyed by
// (symbol, website, stock_rating). A key column that is absent or null
// drops the row; an empty string is a valid key value.
func NormalizeCompanies(table fetcher.Table) []models.CompanyProfile {
	var out []models.CompanyProfile
	index := make(map[string]int)

	for _, row := range table {
		symbol := toString(row["symbol"])
		if symbol == "" || isNull(row["website"]) || isNull(row["stock_rating"]) {
			continue
		}

		p := models.CompanyProfile{
			Symbol:      symbol,
			Website:     toString(row["website"]),
			StockRating: toString(row["stock_rating"]),
			Attributes:  make(map[string]string, len(companyColumns)),
		}
		for _, col := range companyColumns {
			if !isNull(row[col]) {
				p.Attributes[col] = toString(row[col])
			}
		}
		if d, ok := toTime(row["date_updated"]); ok {
			p.DateUpdated = d[:len(dateLayout)]
		}

		key := strings.Join([]string{p.Symbol, p.Website, p.StockRating}, "\x00")
		if i, dup := index[key]; dup {
			out[i] = p
			continue
		}
		index[key] = len(out)
		out = append(out, p)
	}
	return out
}

func isNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	}
	return false
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return toString(float64(x))
	case json.Number:
		return x.String()
	case time.Time:
		return x.Format(TimeLayout)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// toTime parses v into the canonical layout.
func toTime(v any) (string, bool) {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return "", false
		}
		return x.Format(TimeLayout), true
	case *time.Time:
		if x == nil {
			return "", false
		}
		return toTime(*x)
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Format(TimeLayout), true
			}
		}
		return "", false
	case int64:
		return epochTime(x), true
	case int:
		return epochTime(int64(x)), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "", false
		}
		return epochTime(int64(x)), true
	}
	return "", false
}

// epochTime interprets n as unix seconds, or milliseconds when it is too
// large to be seconds.
func epochTime(n int64) string {
	if n > 1e11 || n < -1e11 {
		return time.UnixMilli(n).UTC().Format(TimeLayout)
	}
	return time.Unix(n, 0).UTC().Format(TimeLayout)
}

// toInt64 coerces a volume-like value, rounding fractions. Anything
// non-numeric becomes 0.
func toInt64(v any) int64 {
	if d, ok := toDecimal(v); ok {
		return d.Round(0).IntPart()
	}
	return 0
}

// toInt is like toInt64 but reports whether v was numeric.
func toInt(v any) (int64, bool) {
	d, ok := toDecimal(v)
	if !ok {
		return 0, false
	}
	return d.Round(0).IntPart(), true
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(x), true
	case float32:
		return toDecimal(float64(x))
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int32:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	case uint32:
		return decimal.NewFromInt(int64(x)), true
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(x), ",", ""))
		return d, err == nil
	}
	return decimal.Zero, false
}

func toDecimalOrZero(v any) decimal.Decimal {
	d, _ := toDecimal(v)
	return d
}
