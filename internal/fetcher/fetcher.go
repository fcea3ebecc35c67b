package fetcher

import (
	"context"
	"time"
)

// ReportType discriminates the three financial statements.
type ReportType string

const (
	ReportBalanceSheet    ReportType = "BS"
	ReportIncomeStatement ReportType = "IS"
	ReportCashFlow        ReportType = "CF"
)

// ReportTypes lists the statements fetched for KindFinancialStatement, in order.
var ReportTypes = []ReportType{ReportBalanceSheet, ReportIncomeStatement, ReportCashFlow}

// Provider is the upstream market data capability. Implementations perform
// network calls and may fail with a throttling error or a hard error; the
// Dispatcher classifies both.
type Provider interface {
	// Snapshot returns today's one-minute bars.
	Snapshot(ctx context.Context, symbol string) (Table, error)

	// DailyBar returns today's daily bar.
	DailyBar(ctx context.Context, symbol string) (Table, error)

	// DailyHistory returns daily bars between start and end inclusive.
	DailyHistory(ctx context.Context, symbol string, start, end time.Time) (Table, error)

	// IntradayTicks returns up to pageSize matched ticks for the current session.
	IntradayTicks(ctx context.Context, symbol string, pageSize int) (Table, error)

	// FinancialStatements returns one statement in wide form: one row per
	// period with the id columns ticker, yearReport and lengthReport plus one
	// column per line item.
	FinancialStatements(ctx context.Context, symbol string, report ReportType, period string) (Table, error)

	// CompanyOverview returns the company overview record, or nil.
	CompanyOverview(ctx context.Context, symbol string) (Row, error)

	// CompanyProfile returns the company profile record, or nil.
	CompanyProfile(ctx context.Context, symbol string) (Row, error)
}
