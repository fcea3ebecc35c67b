package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"marketloader/internal/fetcher"
	"marketloader/internal/models"
)

// PriceBars returns the stored bars of a price kind for symbol, oldest first.
func (s *Store) PriceBars(ctx context.Context, kind fetcher.Kind, symbol string) ([]models.PriceBar, error) {
	switch kind {
	case fetcher.KindPriceIntraday1m, fetcher.KindPriceDaily, fetcher.KindPriceDailyHistory:
	default:
		return nil, fmt.Errorf("%s is not a price kind", kind)
	}

	query := fmt.Sprintf(`
		SELECT symbol, time, open, high, low, close, volume
		FROM %s
		WHERE symbol = $1
		ORDER BY time
	`, kind.Table())
	rows, err := s.conn.QueryContext(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to get price bars: %w", err)
	}
	defer rows.Close()

	var bars []models.PriceBar
	for rows.Next() {
		var b models.PriceBar
		if err := rows.Scan(&b.Symbol, &b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan price bar: %w", err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// IntradayTicks returns the stored ticks for symbol ordered by time and id.
func (s *Store) IntradayTicks(ctx context.Context, symbol string) ([]models.IntradayTick, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT symbol, time, id, price, volume, match_type
		FROM intraday_data
		WHERE symbol = $1
		ORDER BY time, id
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to get intraday ticks: %w", err)
	}
	defer rows.Close()

	var ticks []models.IntradayTick
	for rows.Next() {
		var t models.IntradayTick
		if err := rows.Scan(&t.Symbol, &t.Time, &t.ID, &t.Price, &t.Volume, &t.MatchType); err != nil {
			return nil, fmt.Errorf("failed to scan intraday tick: %w", err)
		}
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

// FinancialFacts returns every stored version of symbol's facts.
func (s *Store) FinancialFacts(ctx context.Context, symbol string) ([]models.FinancialFact, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT symbol, report_type, year, quarter, field, value, version, downloaded_at, is_latest
		FROM finance_data
		WHERE symbol = $1
		ORDER BY report_type, year, quarter, field, version
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to get financial facts: %w", err)
	}
	defer rows.Close()

	var facts []models.FinancialFact
	for rows.Next() {
		var f models.FinancialFact
		if err := rows.Scan(&f.Symbol, &f.ReportType, &f.Year, &f.Quarter, &f.Field,
			&f.Value, &f.Version, &f.DownloadedAt, &f.IsLatest); err != nil {
			return nil, fmt.Errorf("failed to scan financial fact: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// CompanyProfiles returns the stored company records for symbol.
func (s *Store) CompanyProfiles(ctx context.Context, symbol string) ([]models.CompanyProfile, error) {
	cols := append([]string{"symbol", "website", "stock_rating", "date_updated"}, companyColumns...)
	query := fmt.Sprintf(`
		SELECT %s
		FROM company_info
		WHERE symbol = $1
		ORDER BY website, stock_rating
	`, strings.Join(cols, ", "))

	rows, err := s.conn.QueryContext(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to get company profiles: %w", err)
	}
	defer rows.Close()

	var out []models.CompanyProfile
	for rows.Next() {
		var (
			p       models.CompanyProfile
			updated sql.NullString
			attrs   = make([]sql.NullString, len(companyColumns))
		)
		dest := []any{&p.Symbol, &p.Website, &p.StockRating, &updated}
		for i := range attrs {
			dest = append(dest, &attrs[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan company profile: %w", err)
		}

		p.DateUpdated = updated.String
		p.Attributes = make(map[string]string, len(companyColumns))
		for i, col := range companyColumns {
			if attrs[i].Valid {
				p.Attributes[col] = attrs[i].String
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
