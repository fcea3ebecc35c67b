package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketloader/internal/config"
	"marketloader/internal/fetcher"
	"marketloader/internal/models"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func setupSQLiteStore(t *testing.T, clock *testClock) *Store {
	t.Helper()
	ctx := context.Background()

	cfg := config.DatabaseConfig{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "nested", "market.db"),
	}
	store, err := Open(ctx, cfg, WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Migrate(ctx))
	return store
}

func fixtureResult(symbol string) fetcher.Result {
	return fetcher.Result{
		fetcher.KindPriceIntraday1m: fetcher.Table{
			{"symbol": symbol, "time": "2024-04-11 09:15:00", "open": 100.0, "high": 101.0, "low": 99.5, "close": 100.5, "volume": 1200},
			{"symbol": symbol, "time": "2024-04-11 09:16:00", "open": 100.5, "high": 102.0, "low": 100.0, "close": 101.5, "volume": "x"},
		},
		fetcher.KindPriceDaily: fetcher.Table{
			{"symbol": symbol, "time": "2024-04-11", "openPrice": 100.0, "highPrice": 102.0, "lowPrice": 99.0, "closePrice": 101.5, "volume": 55000},
		},
		fetcher.KindIntradayTicks: fetcher.Table{
			{"symbol": symbol, "time": "2024-04-11 09:15:01", "id": 1, "price": 100.0, "volume": 100, "match_type": "Buy"},
			{"symbol": symbol, "time": "2024-04-11 09:15:02", "id": 2, "price": 100.1, "volume": 200, "match_type": "Sell"},
			{"symbol": symbol, "time": "2024-04-11 09:15:03", "price": 100.1, "volume": 200, "match_type": "Sell"},
		},
		fetcher.KindFinancialStatement: fetcher.Table{
			{"symbol": symbol, "report_type": "BS", "year": 2024, "quarter": 1, "field": "Cash", "value": 10.5},
			{"symbol": symbol, "report_type": "IS", "year": 2024, "quarter": 1, "field": "Revenue", "value": 250.0},
		},
		fetcher.KindCompanyProfile: fetcher.Table{
			{"symbol": symbol, "website": "example.com", "stock_rating": "A", "company_name": "Example JSC", "date_updated": "2024-04-11"},
		},
	}
}

func TestStore_MigrateIsRepeatable(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 4, 11, 10, 0, 0, 0, time.UTC)}
	store := setupSQLiteStore(t, clock)

	require.NoError(t, store.Migrate(context.Background()))

	has, err := store.HasData(context.Background())
	require.NoError(t, err)
	assert.False(t, has)
}

func TestStore_PersistIsIdempotent(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2024, 4, 11, 10, 0, 0, 0, time.UTC)}
	store := setupSQLiteStore(t, clock)

	res := fixtureResult("FPT")

	stats, err := store.Persist(ctx, "FPT", res)
	require.NoError(t, err)
	assert.Equal(t, 2, stats[fetcher.KindPriceIntraday1m].Inserted)
	assert.Equal(t, 1, stats[fetcher.KindPriceDaily].Inserted)
	assert.Equal(t, 2, stats[fetcher.KindIntradayTicks].Inserted)
	assert.Equal(t, 1, stats[fetcher.KindIntradayTicks].Dropped)
	assert.Equal(t, 2, stats[fetcher.KindFinancialStatement].Inserted)
	assert.Equal(t, 1, stats[fetcher.KindCompanyProfile].Inserted)

	before := map[fetcher.Kind]int{}
	for _, kind := range fetcher.AllKinds() {
		n, err := store.CountRows(ctx, kind)
		require.NoError(t, err)
		before[kind] = n
	}

	stats, err = store.Persist(ctx, "FPT", res)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Inserted())
	assert.Equal(t, 2, stats[fetcher.KindPriceIntraday1m].Ignored)
	assert.Equal(t, 2, stats[fetcher.KindFinancialStatement].Ignored)

	for _, kind := range fetcher.AllKinds() {
		n, err := store.CountRows(ctx, kind)
		require.NoError(t, err)
		assert.Equal(t, before[kind], n, "row count for %s", kind)
	}

	has, err := store.HasData(ctx)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestStore_PriceFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2024, 4, 11, 10, 0, 0, 0, time.UTC)}
	store := setupSQLiteStore(t, clock)

	first := fetcher.Result{fetcher.KindPriceDaily: fetcher.Table{
		{"symbol": "VNM", "time": "2024-04-11", "close": 70.5, "volume": "n/a"},
	}}
	second := fetcher.Result{fetcher.KindPriceDaily: fetcher.Table{
		{"symbol": "VNM", "time": "2024-04-11", "close": 99.9, "volume": 10},
	}}

	_, err := store.Persist(ctx, "VNM", first)
	require.NoError(t, err)
	_, err = store.Persist(ctx, "VNM", second)
	require.NoError(t, err)

	bars, err := store.PriceBars(ctx, fetcher.KindPriceDaily, "VNM")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, "2024-04-11 00:00:00", bars[0].Time)
	assert.True(t, bars[0].Close.Equal(decimal.RequireFromString("70.5")))
	assert.Equal(t, int64(0), bars[0].Volume)
}

func factResult(value float64) fetcher.Result {
	return fetcher.Result{fetcher.KindFinancialStatement: fetcher.Table{
		{"symbol": "FPT", "report_type": "BS", "year": 2023, "quarter": 4, "field": "Total assets", "value": value},
	}}
}

func latestFacts(facts []models.FinancialFact) []models.FinancialFact {
	var out []models.FinancialFact
	for _, f := range facts {
		if f.IsLatest {
			out = append(out, f)
		}
	}
	return out
}

func TestStore_FinancialVersioning(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2024, 4, 11, 10, 0, 0, 0, time.UTC)}
	store := setupSQLiteStore(t, clock)

	// v1 on day one
	stats, err := store.Persist(ctx, "FPT", factResult(100))
	require.NoError(t, err)
	assert.Equal(t, 1, stats[fetcher.KindFinancialStatement].Inserted)

	// v2 on day two demotes v1
	clock.Set(time.Date(2024, 4, 12, 10, 0, 0, 0, time.UTC))
	_, err = store.Persist(ctx, "FPT", factResult(120))
	require.NoError(t, err)

	facts, err := store.FinancialFacts(ctx, "FPT")
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "2024-04-11", facts[0].Version)
	assert.False(t, facts[0].IsLatest)
	assert.True(t, facts[0].Value.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "2024-04-12", facts[1].Version)
	assert.True(t, facts[1].IsLatest)
	assert.True(t, facts[1].Value.Equal(decimal.NewFromInt(120)))

	// re-inserting v2 is a no-op
	clock.Set(time.Date(2024, 4, 13, 10, 0, 0, 0, time.UTC))
	stats, err = store.Persist(ctx, "FPT", factResult(120))
	require.NoError(t, err)
	assert.Equal(t, 0, stats[fetcher.KindFinancialStatement].Inserted)
	assert.Equal(t, 1, stats[fetcher.KindFinancialStatement].Ignored)

	after, err := store.FinancialFacts(ctx, "FPT")
	require.NoError(t, err)
	assert.Equal(t, facts, after)
}

func TestStore_FinancialKnownValueIsNoop(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2024, 4, 11, 10, 0, 0, 0, time.UTC)}
	store := setupSQLiteStore(t, clock)

	_, err := store.Persist(ctx, "FPT", factResult(100))
	require.NoError(t, err)
	clock.Set(time.Date(2024, 4, 12, 10, 0, 0, 0, time.UTC))
	_, err = store.Persist(ctx, "FPT", factResult(120))
	require.NoError(t, err)

	// an older value coming back matches an existing version
	clock.Set(time.Date(2024, 4, 13, 10, 0, 0, 0, time.UTC))
	stats, err := store.Persist(ctx, "FPT", factResult(100))
	require.NoError(t, err)
	assert.Equal(t, 0, stats[fetcher.KindFinancialStatement].Inserted)
	assert.Equal(t, 1, stats[fetcher.KindFinancialStatement].Ignored)

	facts, err := store.FinancialFacts(ctx, "FPT")
	require.NoError(t, err)
	require.Len(t, facts, 2)

	latest := latestFacts(facts)
	require.Len(t, latest, 1)
	assert.Equal(t, "2024-04-12", latest[0].Version)
	assert.True(t, latest[0].Value.Equal(decimal.NewFromInt(120)))
}

func TestStore_FinancialSameDayChangeAppends(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2024, 4, 12, 9, 0, 0, 0, time.UTC)}
	store := setupSQLiteStore(t, clock)

	_, err := store.Persist(ctx, "FPT", factResult(120))
	require.NoError(t, err)
	clock.Set(time.Date(2024, 4, 12, 15, 0, 0, 0, time.UTC))
	stats, err := store.Persist(ctx, "FPT", factResult(130))
	require.NoError(t, err)
	assert.Equal(t, 1, stats[fetcher.KindFinancialStatement].Inserted)

	facts, err := store.FinancialFacts(ctx, "FPT")
	require.NoError(t, err)
	require.Len(t, facts, 2)

	assert.Equal(t, "2024-04-12", facts[0].Version)
	assert.False(t, facts[0].IsLatest)
	assert.True(t, facts[0].Value.Equal(decimal.NewFromInt(120)), "earlier row is kept")

	assert.Equal(t, "2024-04-12 15:00:00", facts[1].Version)
	assert.True(t, facts[1].IsLatest)
	assert.True(t, facts[1].Value.Equal(decimal.NewFromInt(130)))
}

func TestStore_FinancialHighPrecisionValue(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2024, 4, 11, 10, 0, 0, 0, time.UTC)}
	store := setupSQLiteStore(t, clock)

	result := fetcher.Result{fetcher.KindFinancialStatement: fetcher.Table{
		{"symbol": "FPT", "report_type": "IS", "year": 2024, "quarter": 1, "field": "EPS", "value": "0.12345678901234567891"},
	}}

	stats, err := store.Persist(ctx, "FPT", result)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[fetcher.KindFinancialStatement].Inserted)

	clock.Set(time.Date(2024, 4, 12, 10, 0, 0, 0, time.UTC))
	stats, err = store.Persist(ctx, "FPT", result)
	require.NoError(t, err)
	assert.Equal(t, 0, stats[fetcher.KindFinancialStatement].Inserted)
	assert.Equal(t, 1, stats[fetcher.KindFinancialStatement].Ignored)

	facts, err := store.FinancialFacts(ctx, "FPT")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "0.12345678901234567891", facts[0].Value.String())
}

func TestStore_ConcurrentPersist(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2024, 4, 11, 10, 0, 0, 0, time.UTC)}
	store := setupSQLiteStore(t, clock)

	symbols := []string{"AAA", "BBB", "CCC", "DDD", "EEE", "FFF"}
	var wg sync.WaitGroup
	for _, sym := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			_, err := store.Persist(ctx, symbol, fixtureResult(symbol))
			assert.NoError(t, err)
			_, err = store.Persist(ctx, symbol, factResult(float64(len(symbol))))
			assert.NoError(t, err)
		}(sym)
	}
	wg.Wait()

	n, err := store.CountRows(ctx, fetcher.KindPriceIntraday1m)
	require.NoError(t, err)
	assert.Equal(t, 2*len(symbols), n)

	facts, err := store.FinancialFacts(ctx, "FPT")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.True(t, facts[0].IsLatest)
}

func TestStore_CompanyProfiles(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2024, 4, 11, 10, 0, 0, 0, time.UTC)}
	store := setupSQLiteStore(t, clock)

	_, err := store.Persist(ctx, "FPT", fixtureResult("FPT"))
	require.NoError(t, err)

	profiles, err := store.CompanyProfiles(ctx, "FPT")
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "example.com", profiles[0].Website)
	assert.Equal(t, "Example JSC", profiles[0].Attributes["company_name"])
	assert.Equal(t, "2024-04-11", profiles[0].DateUpdated)

	ticks, err := store.IntradayTicks(ctx, "FPT")
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.Equal(t, "1", ticks[0].ID)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "mysql", DSN: "x"})
	assert.Error(t, err)
}
