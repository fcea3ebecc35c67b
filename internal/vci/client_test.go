package vci

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketloader/internal/config"
	"marketloader/internal/fetcher"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewClient(config.ProviderConfig{
		BaseURL:     server.URL,
		APIKey:      "test-key",
		Timeout:     5 * time.Second,
		HTTPRetries: 0,
	}, nil)
	c.now = func() time.Time { return time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC) }
	return c
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestClient_Snapshot(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/stocks/FPT/bars", r.URL.Path)
		assert.Equal(t, "1m", r.URL.Query().Get("resolution"))
		assert.Equal(t, "2025-03-14", r.URL.Query().Get("from"))
		assert.Equal(t, "2025-03-14", r.URL.Query().Get("to"))
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))

		writeJSON(w, http.StatusOK, `{
			"status": "ok",
			"data": [
				{"time": "2025-03-14 09:15:00", "open": 120.5, "high": 121, "low": 120.1, "close": 120.8, "volume": 15000},
				{"time": "2025-03-14 09:16:00", "open": 120.8, "high": 121.2, "low": 120.7, "close": 121.1, "volume": 9000}
			]
		}`)
	})

	table, err := c.Snapshot(context.Background(), "fpt")
	require.NoError(t, err)
	require.Len(t, table, 2)
	assert.Equal(t, "2025-03-14 09:15:00", table[0]["time"])
	assert.Equal(t, 120.5, table[0]["open"])
	assert.Equal(t, float64(9000), table[1]["volume"])
}

func TestClient_DailyHistory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1D", r.URL.Query().Get("resolution"))
		assert.Equal(t, "2025-01-01", r.URL.Query().Get("from"))
		assert.Equal(t, "2025-03-14", r.URL.Query().Get("to"))
		writeJSON(w, http.StatusOK, `{"status": "ok", "data": [{"time": "2025-01-02", "close": 99.5}]}`)
	})

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	table, err := c.DailyHistory(context.Background(), "VNM", start, end)
	require.NoError(t, err)
	require.Len(t, table, 1)
	assert.Equal(t, 99.5, table[0]["close"])
}

func TestClient_IntradayTicks(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/stocks/HPG/ticks", r.URL.Path)
		assert.Equal(t, "30000", r.URL.Query().Get("page_size"))
		writeJSON(w, http.StatusOK, `{"status": "ok", "data": [{"id": "t1", "matchType": "Buy", "matchPrice": 27.3, "matchVol": 500}]}`)
	})

	table, err := c.IntradayTicks(context.Background(), "HPG", 30000)
	require.NoError(t, err)
	require.Len(t, table, 1)
	assert.Equal(t, "Buy", table[0]["matchType"])
}

func TestClient_FinancialStatements(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/stocks/FPT/financials", r.URL.Path)
		assert.Equal(t, "IS", r.URL.Query().Get("report"))
		assert.Equal(t, "quarterly", r.URL.Query().Get("period"))
		assert.Equal(t, "en", r.URL.Query().Get("lang"))
		writeJSON(w, http.StatusOK, `{"status": "ok", "data": [{"ticker": "FPT", "yearReport": 2024, "lengthReport": 4, "Revenue": 1000}]}`)
	})

	table, err := c.FinancialStatements(context.Background(), "FPT", fetcher.ReportIncomeStatement, "quarterly")
	require.NoError(t, err)
	require.Len(t, table, 1)
	assert.Equal(t, float64(1000), table[0]["Revenue"])
}

func TestClient_CompanyRecords(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/stocks/FPT/overview":
			writeJSON(w, http.StatusOK, `{"status": "ok", "data": {"exchange": "HOSE", "industry": "Technology"}}`)
		case "/v1/stocks/FPT/profile":
			writeJSON(w, http.StatusOK, `{"status": "ok", "data": {"website": "fpt.com.vn", "stock_rating": "A"}}`)
		default:
			http.NotFound(w, r)
		}
	})

	overview, err := c.CompanyOverview(context.Background(), "FPT")
	require.NoError(t, err)
	assert.Equal(t, "HOSE", overview["exchange"])

	profile, err := c.CompanyProfile(context.Background(), "FPT")
	require.NoError(t, err)
	assert.Equal(t, "fpt.com.vn", profile["website"])
}

func TestClient_EmptyData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"status": "ok", "data": []}`)
	})

	table, err := c.DailyBar(context.Background(), "FPT")
	require.NoError(t, err)
	assert.Empty(t, table)
}

func TestClient_RateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, `{"status": "error", "message": "Too many requests"}`)
	})

	_, err := c.Snapshot(context.Background(), "FPT")
	require.Error(t, err)

	var fe *fetcher.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, fetcher.ErrorTypeRateLimit, fe.Type)
	assert.Equal(t, http.StatusTooManyRequests, fe.StatusCode)
	assert.Equal(t, "Too many requests", fe.Message)
	assert.Equal(t, fetcher.ClassThrottled, fetcher.Classify(err))
}

func TestClient_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `oops`)
	})

	_, err := c.DailyBar(context.Background(), "FPT")
	require.Error(t, err)

	var fe *fetcher.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, fetcher.ErrorTypeServer, fe.Type)
	assert.Equal(t, fetcher.ClassHard, fetcher.Classify(err))
}

func TestClient_ServerErrorRetriedByTransport(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusBadGateway, `{}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"status": "ok", "data": [{"time": "2025-03-14", "close": 1}]}`)
	}))
	defer server.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil)).With("run_id", "run-1")

	c := NewClient(config.ProviderConfig{BaseURL: server.URL, HTTPRetries: 2}, logger)
	table, err := c.DailyBar(context.Background(), "FPT")
	require.NoError(t, err)
	assert.Len(t, table, 1)
	assert.Equal(t, int32(2), calls.Load())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(logs.Bytes()), &entry))
	assert.Equal(t, "provider returned retryable status", entry["msg"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "vci", entry["component"])
	assert.Equal(t, float64(http.StatusBadGateway), entry["status_code"])
}

func TestClient_ClientError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"status": "error", "message": "symbol not found"}`)
	})

	_, err := c.CompanyOverview(context.Background(), "NOPE")
	require.Error(t, err)

	var fe *fetcher.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, fetcher.ErrorTypeClient, fe.Type)
	assert.Equal(t, "symbol not found", fe.Message)
}

func TestClient_ErrorEnvelope(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		wantClass fetcher.Class
	}{
		{"throttle message", "Bạn đã gửi quá nhiều request, vui lòng thử lại sau 30 giây", fetcher.ClassThrottled},
		{"hard message", "invalid symbol", fetcher.ClassHard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, `{"status": "error", "message": "`+tt.message+`"}`)
			})

			_, err := c.Snapshot(context.Background(), "FPT")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
			assert.Equal(t, tt.wantClass, fetcher.Classify(err))
		})
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"status": "ok", "data": []}`)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Snapshot(ctx, "FPT")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryCondition(t *testing.T) {
	assert.True(t, retryCondition(nil, errors.New("connection reset")))
}
