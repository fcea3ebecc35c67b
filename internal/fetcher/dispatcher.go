package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

const (
	// DefaultIntradayPageSize is the tick page requested for KindIntradayTicks.
	DefaultIntradayPageSize = 30000
	// DefaultFinancePeriod is the statement period requested for KindFinancialStatement.
	DefaultFinancePeriod = "quarterly"
	// DefaultHistoryWindow is how far back KindPriceDailyHistory reaches.
	DefaultHistoryWindow = (3*365 + 20) * 24 * time.Hour
)

// Gate admits provider calls. *ratelimit.Limiter satisfies it.
type Gate interface {
	Acquire(ctx context.Context) error
	Release()
}

// Dispatcher turns a (symbol, kinds) request into provider calls and
// assembles the partial Result.
type Dispatcher struct {
	provider      Provider
	gate          Gate
	logger        *slog.Logger
	now           func() time.Time
	pageSize      int
	period        string
	historyWindow time.Duration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithClock sets the time source used for date ranges and stamps.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// WithIntradayPageSize sets the tick page size.
func WithIntradayPageSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.pageSize = n
		}
	}
}

// WithFinancePeriod sets the statement period ("quarterly" or "yearly").
func WithFinancePeriod(period string) DispatcherOption {
	return func(d *Dispatcher) {
		if period != "" {
			d.period = period
		}
	}
}

// WithHistoryWindow sets how far back the daily history reaches.
func WithHistoryWindow(window time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if window > 0 {
			d.historyWindow = window
		}
	}
}

// NewDispatcher creates a Dispatcher. The gate is shared with every other
// dispatcher call in the process.
func NewDispatcher(provider Provider, gate Gate, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		provider:      provider,
		gate:          gate,
		logger:        slog.Default(),
		now:           time.Now,
		pageSize:      DefaultIntradayPageSize,
		period:        DefaultFinancePeriod,
		historyWindow: DefaultHistoryWindow,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fetch retrieves every requested kind for symbol while holding one gate slot.
// Empty payloads are omitted from the Result. The first provider failure
// aborts the symbol and is returned as a classified *SymbolError.
func (d *Dispatcher) Fetch(ctx context.Context, symbol string, kinds []Kind) (Result, error) {
	if len(kinds) == 0 {
		return nil, ErrNoKinds
	}

	if err := d.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer d.gate.Release()

	ordered := make([]Kind, len(kinds))
	copy(ordered, kinds)
	SortKinds(ordered)

	result := make(Result, len(ordered))
	for _, kind := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		table, err := d.fetchKind(ctx, symbol, kind)
		if err != nil {
			se := newSymbolError(symbol, kind, err)
			if se.Class == ClassThrottled {
				se.Err = fmt.Errorf("%w: %v", ErrRateLimited, err)
				d.logger.Debug("provider throttled", "symbol", symbol, "kind", kind, "error", err)
			}
			return nil, se
		}
		if len(table) == 0 {
			continue
		}
		result[kind] = table
	}

	if len(result) == 0 {
		return nil, &SymbolError{Symbol: symbol, Class: ClassHard, Err: ErrNoData}
	}
	return result, nil
}

func (d *Dispatcher) fetchKind(ctx context.Context, symbol string, kind Kind) (Table, error) {
	now := d.now()

	switch kind {
	case KindPriceIntraday1m:
		t, err := d.provider.Snapshot(ctx, symbol)
		return stamp(t, symbol), err
	case KindPriceDaily:
		t, err := d.provider.DailyBar(ctx, symbol)
		return stamp(t, symbol), err
	case KindPriceDailyHistory:
		t, err := d.provider.DailyHistory(ctx, symbol, now.Add(-d.historyWindow), now)
		return stamp(t, symbol), err
	case KindIntradayTicks:
		t, err := d.provider.IntradayTicks(ctx, symbol, d.pageSize)
		return stamp(t, symbol), err
	case KindFinancialStatement:
		return d.fetchFinancials(ctx, symbol)
	case KindCompanyProfile:
		return d.fetchCompany(ctx, symbol, now)
	default:
		return nil, NewValidationError("unsupported fetch kind " + string(kind))
	}
}

// fetchFinancials reshapes each statement from wide to long and unions them.
func (d *Dispatcher) fetchFinancials(ctx context.Context, symbol string) (Table, error) {
	var out Table
	for _, report := range ReportTypes {
		wide, err := d.provider.FinancialStatements(ctx, symbol, report, d.period)
		if err != nil {
			return nil, err
		}
		out = append(out, melt(wide, symbol, report)...)
	}
	return out, nil
}

var statementIDColumns = map[string]bool{
	"ticker":       true,
	"yearReport":   true,
	"lengthReport": true,
}

func melt(wide Table, symbol string, report ReportType) Table {
	var long Table
	for _, row := range wide {
		sym := symbol
		if t, ok := row["ticker"].(string); ok && t != "" {
			sym = t
		}

		fields := make([]string, 0, len(row))
		for col := range row {
			if !statementIDColumns[col] {
				fields = append(fields, col)
			}
		}
		sort.Strings(fields)

		for _, field := range fields {
			long = append(long, Row{
				"symbol":      sym,
				"report_type": string(report),
				"year":        row["yearReport"],
				"quarter":     row["lengthReport"],
				"field":       field,
				"value":       row[field],
			})
		}
	}
	return long
}

// fetchCompany merges overview and profile into one record. A profile column
// whose name is already taken by the overview is kept with a "_" prefix.
func (d *Dispatcher) fetchCompany(ctx context.Context, symbol string, now time.Time) (Table, error) {
	overview, err := d.provider.CompanyOverview(ctx, symbol)
	if err != nil {
		return nil, err
	}
	profile, err := d.provider.CompanyProfile(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(overview) == 0 && len(profile) == 0 {
		return nil, nil
	}

	merged := make(Row, len(overview)+len(profile)+2)
	for k, v := range overview {
		merged[k] = v
	}
	for k, v := range profile {
		name := k
		for {
			if _, taken := merged[name]; !taken {
				break
			}
			name = "_" + name
		}
		merged[name] = v
	}
	merged["symbol"] = symbol
	merged["date_updated"] = now.Format("2006-01-02")
	return Table{merged}, nil
}

// stamp copies rows and sets their symbol column.
func stamp(t Table, symbol string) Table {
	if len(t) == 0 {
		return nil
	}
	out := make(Table, 0, len(t))
	for _, row := range t {
		r := make(Row, len(row)+1)
		for k, v := range row {
			r[k] = v
		}
		r["symbol"] = symbol
		out = append(out, r)
	}
	return out
}
