package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"marketloader/internal/models"
)

// upsertFacts applies the version-superseding rule to each fact:
//   - any stored version of the key already holds the value: no write
//   - otherwise every row for the key is demoted and the fact is appended as
//     today's version with is_latest set; when today's version is taken the
//     download timestamp is used as the version instead
//
// It runs inside the caller's transaction under the Store mutex, so the read
// and the writes form one compare-and-swap per key.
func (s *Store) upsertFacts(ctx context.Context, tx *sql.Tx, facts []models.FinancialFact) (inserted, skipped int, err error) {
	if len(facts) == 0 {
		return 0, 0, nil
	}

	versions, err := tx.PrepareContext(ctx, `
		SELECT value, version FROM finance_data
		WHERE symbol = $1 AND report_type = $2 AND year = $3 AND quarter = $4 AND field = $5
	`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare version lookup: %w", err)
	}
	defer versions.Close()

	demote, err := tx.PrepareContext(ctx, `
		UPDATE finance_data SET is_latest = FALSE
		WHERE symbol = $1 AND report_type = $2 AND year = $3 AND quarter = $4 AND field = $5
		  AND is_latest = TRUE
	`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare demote: %w", err)
	}
	defer demote.Close()

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO finance_data (symbol, report_type, year, quarter, field, value, version, downloaded_at, is_latest)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
	`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer insert.Close()

	now := s.now()
	today := now.Format(dateLayout)
	downloadedAt := now.Format(TimeLayout)

	for _, f := range facts {
		key := []any{f.Symbol, f.ReportType, f.Year, f.Quarter, f.Field}

		known, todayTaken, err := lookupVersions(ctx, versions, key, f.Value, today)
		if err != nil {
			return inserted, skipped, fmt.Errorf("failed to read versions of %s: %w", f.Field, err)
		}
		if known {
			skipped++
			continue
		}

		version := today
		if todayTaken {
			version = downloadedAt
			s.logger.Warn("financial fact changed twice in one day",
				"symbol", f.Symbol,
				"report_type", f.ReportType,
				"year", f.Year,
				"quarter", f.Quarter,
				"field", f.Field,
				"version", version,
			)
		}

		if _, err := demote.ExecContext(ctx, key...); err != nil {
			return inserted, skipped, fmt.Errorf("failed to demote %s: %w", f.Field, err)
		}

		args := append(key, f.Value, version, downloadedAt)
		if _, err := insert.ExecContext(ctx, args...); err != nil {
			return inserted, skipped, fmt.Errorf("failed to insert %s: %w", f.Field, err)
		}
		inserted++
	}
	return inserted, skipped, nil
}

// lookupVersions reports whether any stored version of key holds value, and
// whether a version dated today already exists.
func lookupVersions(ctx context.Context, stmt *sql.Stmt, key []any, value decimal.Decimal, today string) (known, todayTaken bool, err error) {
	rows, err := stmt.QueryContext(ctx, key...)
	if err != nil {
		return false, false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			stored  decimal.Decimal
			version string
		)
		if err := rows.Scan(&stored, &version); err != nil {
			return false, false, err
		}
		if stored.Equal(value) {
			known = true
		}
		if version == today {
			todayTaken = true
		}
	}
	return known, todayTaken, rows.Err()
}
