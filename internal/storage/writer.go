package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"marketloader/internal/fetcher"
	"marketloader/internal/models"
)

// KindStats counts the outcome of writing one kind.
type KindStats struct {
	Inserted int
	Ignored  int
	Dropped  int
}

// WriteStats reports what one Persist call did, per kind.
type WriteStats map[fetcher.Kind]KindStats

// Inserted returns the total number of rows written across kinds.
func (w WriteStats) Inserted() int {
	n := 0
	for _, s := range w {
		n += s.Inserted
	}
	return n
}

// Persist normalizes and writes every kind in res inside one transaction.
// Price, tick and company rows are insert-or-ignore; financial facts go
// through the version-superseding upsert. The transaction is committed
// before Persist returns.
func (s *Store) Persist(ctx context.Context, symbol string, res fetcher.Result) (WriteStats, error) {
	stats := make(WriteStats, len(res))
	if len(res) == 0 {
		return stats, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, kind := range res.Kinds() {
		table := res[kind]
		var ks KindStats

		switch kind {
		case fetcher.KindPriceIntraday1m, fetcher.KindPriceDaily, fetcher.KindPriceDailyHistory:
			bars := NormalizePrices(table)
			ks.Dropped = len(table) - len(bars)
			ks.Inserted, ks.Ignored, err = insertPrices(ctx, tx, kind.Table(), bars)
		case fetcher.KindIntradayTicks:
			ticks := NormalizeTicks(table)
			ks.Dropped = len(table) - len(ticks)
			ks.Inserted, ks.Ignored, err = insertTicks(ctx, tx, ticks)
		case fetcher.KindFinancialStatement:
			facts := NormalizeFacts(table)
			ks.Dropped = len(table) - len(facts)
			ks.Inserted, ks.Ignored, err = s.upsertFacts(ctx, tx, facts)
		case fetcher.KindCompanyProfile:
			profiles := NormalizeCompanies(table)
			ks.Dropped = len(table) - len(profiles)
			ks.Inserted, ks.Ignored, err = insertCompanies(ctx, tx, profiles)
		default:
			err = fmt.Errorf("unknown fetch kind %q", kind)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to persist %s for %s: %w", kind, symbol, err)
		}
		stats[kind] = ks
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("persisted symbol", "symbol", symbol, "rows", stats.Inserted())
	return stats, nil
}

// execCounted runs stmt once per args and splits the results into
// inserted and conflict-ignored rows.
func execCounted(ctx context.Context, stmt *sql.Stmt, args [][]any) (inserted, ignored int, err error) {
	for _, a := range args {
		res, err := stmt.ExecContext(ctx, a...)
		if err != nil {
			return inserted, ignored, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, ignored, err
		}
		if n == 0 {
			ignored++
		} else {
			inserted++
		}
	}
	return inserted, ignored, nil
}

func insertPrices(ctx context.Context, tx *sql.Tx, table string, bars []models.PriceBar) (int, int, error) {
	if len(bars) == 0 {
		return 0, 0, nil
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (symbol, time, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, time) DO NOTHING
	`, table))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	args := make([][]any, 0, len(bars))
	for _, b := range bars {
		args = append(args, []any{b.Symbol, b.Time, b.Open, b.High, b.Low, b.Close, b.Volume})
	}
	return execCounted(ctx, stmt, args)
}

func insertTicks(ctx context.Context, tx *sql.Tx, ticks []models.IntradayTick) (int, int, error) {
	if len(ticks) == 0 {
		return 0, 0, nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO intraday_data (symbol, time, id, price, volume, match_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (symbol, time, match_type, id) DO NOTHING
	`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	args := make([][]any, 0, len(ticks))
	for _, t := range ticks {
		args = append(args, []any{t.Symbol, t.Time, t.ID, t.Price, t.Volume, t.MatchType})
	}
	return execCounted(ctx, stmt, args)
}

func insertCompanies(ctx context.Context, tx *sql.Tx, profiles []models.CompanyProfile) (int, int, error) {
	if len(profiles) == 0 {
		return 0, 0, nil
	}

	cols := append([]string{"symbol", "website", "stock_rating"}, companyColumns...)
	cols = append(cols, "date_updated")
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO company_info (%s)
		VALUES (%s)
		ON CONFLICT (symbol, website, stock_rating) DO NOTHING
	`, strings.Join(cols, ", "), strings.Join(placeholders, ", ")))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	args := make([][]any, 0, len(profiles))
	for _, p := range profiles {
		a := make([]any, 0, len(cols))
		a = append(a, p.Symbol, p.Website, p.StockRating)
		for _, col := range companyColumns {
			a = append(a, nullString(p.Attributes, col))
		}
		a = append(a, sql.NullString{String: p.DateUpdated, Valid: p.DateUpdated != ""})
		args = append(args, a)
	}
	return execCounted(ctx, stmt, args)
}

func nullString(attrs map[string]string, col string) sql.NullString {
	v, ok := attrs[col]
	return sql.NullString{String: v, Valid: ok}
}
