package testutil

import (
	"context"
	"sync"
	"time"

	"marketloader/internal/fetcher"
	"marketloader/internal/storage"
)

// MockProvider is a mock implementation of fetcher.Provider for testing.
// Unset funcs return an empty payload.
type MockProvider struct {
	SnapshotFunc            func(ctx context.Context, symbol string) (fetcher.Table, error)
	DailyBarFunc            func(ctx context.Context, symbol string) (fetcher.Table, error)
	DailyHistoryFunc        func(ctx context.Context, symbol string, start, end time.Time) (fetcher.Table, error)
	IntradayTicksFunc       func(ctx context.Context, symbol string, pageSize int) (fetcher.Table, error)
	FinancialStatementsFunc func(ctx context.Context, symbol string, report fetcher.ReportType, period string) (fetcher.Table, error)
	CompanyOverviewFunc     func(ctx context.Context, symbol string) (fetcher.Row, error)
	CompanyProfileFunc      func(ctx context.Context, symbol string) (fetcher.Row, error)
}

func (m *MockProvider) Snapshot(ctx context.Context, symbol string) (fetcher.Table, error) {
	if m.SnapshotFunc != nil {
		return m.SnapshotFunc(ctx, symbol)
	}
	return nil, nil
}

func (m *MockProvider) DailyBar(ctx context.Context, symbol string) (fetcher.Table, error) {
	if m.DailyBarFunc != nil {
		return m.DailyBarFunc(ctx, symbol)
	}
	return nil, nil
}

func (m *MockProvider) DailyHistory(ctx context.Context, symbol string, start, end time.Time) (fetcher.Table, error) {
	if m.DailyHistoryFunc != nil {
		return m.DailyHistoryFunc(ctx, symbol, start, end)
	}
	return nil, nil
}

func (m *MockProvider) IntradayTicks(ctx context.Context, symbol string, pageSize int) (fetcher.Table, error) {
	if m.IntradayTicksFunc != nil {
		return m.IntradayTicksFunc(ctx, symbol, pageSize)
	}
	return nil, nil
}

func (m *MockProvider) FinancialStatements(ctx context.Context, symbol string, report fetcher.ReportType, period string) (fetcher.Table, error) {
	if m.FinancialStatementsFunc != nil {
		return m.FinancialStatementsFunc(ctx, symbol, report, period)
	}
	return nil, nil
}

func (m *MockProvider) CompanyOverview(ctx context.Context, symbol string) (fetcher.Row, error) {
	if m.CompanyOverviewFunc != nil {
		return m.CompanyOverviewFunc(ctx, symbol)
	}
	return nil, nil
}

func (m *MockProvider) CompanyProfile(ctx context.Context, symbol string) (fetcher.Row, error) {
	if m.CompanyProfileFunc != nil {
		return m.CompanyProfileFunc(ctx, symbol)
	}
	return nil, nil
}

// MockFetcher is a mock symbol fetcher that counts calls per symbol.
type MockFetcher struct {
	FetchFunc func(ctx context.Context, symbol string, kinds []fetcher.Kind) (fetcher.Result, error)

	mu    sync.Mutex
	calls map[string]int
}

// Fetch records the call and delegates to FetchFunc.
func (m *MockFetcher) Fetch(ctx context.Context, symbol string, kinds []fetcher.Kind) (fetcher.Result, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[symbol]++
	m.mu.Unlock()

	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, symbol, kinds)
	}
	return PriceResult(symbol), nil
}

// Calls returns how many times symbol was fetched.
func (m *MockFetcher) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

// TotalCalls returns the number of fetches across all symbols.
func (m *MockFetcher) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// MockPersister records persisted results.
type MockPersister struct {
	PersistFunc func(ctx context.Context, symbol string, res fetcher.Result) (storage.WriteStats, error)

	mu        sync.Mutex
	persisted map[string]fetcher.Result
}

// Persist records res under symbol unless PersistFunc fails.
func (m *MockPersister) Persist(ctx context.Context, symbol string, res fetcher.Result) (storage.WriteStats, error) {
	stats := storage.WriteStats{}
	if m.PersistFunc != nil {
		var err error
		stats, err = m.PersistFunc(ctx, symbol, res)
		if err != nil {
			return stats, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.persisted == nil {
		m.persisted = make(map[string]fetcher.Result)
	}
	m.persisted[symbol] = res
	return stats, nil
}

// Persisted returns the symbols persisted so far.
func (m *MockPersister) Persisted() map[string]fetcher.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]fetcher.Result, len(m.persisted))
	for k, v := range m.persisted {
		out[k] = v
	}
	return out
}

// PriceResult builds a one-row daily price result for symbol.
func PriceResult(symbol string) fetcher.Result {
	return fetcher.Result{
		fetcher.KindPriceDaily: fetcher.Table{
			{
				"symbol": symbol,
				"time":   "2024-01-15 00:00:00",
				"open":   10.0,
				"high":   11.0,
				"low":    9.5,
				"close":  10.5,
				"volume": 1000,
			},
		},
	}
}
