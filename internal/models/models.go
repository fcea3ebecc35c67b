package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceBar is one OHLCV bar. It is the row shape of price_data,
// price_data_daily and price_data_daily_all.
type PriceBar struct {
	Symbol string          `json:"symbol"`
	Time   string          `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// IntradayTick is one matched order from the intraday tick feed.
type IntradayTick struct {
	Symbol    string          `json:"symbol"`
	Time      string          `json:"time"`
	ID        string          `json:"id"`
	Price     decimal.Decimal `json:"price"`
	Volume    int64           `json:"volume"`
	MatchType string          `json:"match_type"`
}

// FinancialFact is one versioned line item of a financial statement.
type FinancialFact struct {
	Symbol       string          `json:"symbol"`
	ReportType   string          `json:"report_type"`
	Year         int64           `json:"year"`
	Quarter      int64           `json:"quarter"`
	Field        string          `json:"field"`
	Value        decimal.Decimal `json:"value"`
	Version      string          `json:"version"`
	DownloadedAt string          `json:"downloaded_at"`
	IsLatest     bool            `json:"is_latest"`
}

// CompanyProfile is the merged company overview and profile record.
// Attributes holds every descriptive column other than the key.
type CompanyProfile struct {
	Symbol      string            `json:"symbol"`
	Website     string            `json:"website"`
	StockRating string            `json:"stock_rating"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	DateUpdated string            `json:"date_updated"`
}

// RunEvent is published when an ingestion run finishes.
type RunEvent struct {
	RunID      uuid.UUID `json:"run_id"`
	EventType  string    `json:"event_type"`
	Kinds      []string  `json:"kinds"`
	Succeeded  int       `json:"succeeded"`
	Failed     []string  `json:"failed"`
	Rounds     int       `json:"rounds"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// EventRunCompleted is the RunEvent type emitted at the end of every run.
const EventRunCompleted = "RUN_COMPLETED"
