// Package vci is the HTTP client for the market data provider.
package vci

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"resty.dev/v3"

	"marketloader/internal/config"
	"marketloader/internal/fetcher"
)

const dateLayout = "2006-01-02"

// envelope is the provider's response wrapper.
type envelope[T any] struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// Client implements fetcher.Provider over the provider's REST API.
type Client struct {
	client *resty.Client
	now    func() time.Time
}

var _ fetcher.Provider = (*Client)(nil)

// NewClient creates a provider client. Transport retries are logged on
// logger, or on the default logger when it is nil.
func NewClient(cfg config.ProviderConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		client: newHTTPClient(cfg.BaseURL, cfg.Timeout, cfg.HTTPRetries, logger.With("component", "vci")),
		now:    time.Now,
	}
	if cfg.APIKey != "" {
		c.client.SetHeader("X-API-Key", cfg.APIKey)
	}
	return c
}

// Snapshot retrieves today's one-minute bars.
func (c *Client) Snapshot(ctx context.Context, symbol string) (fetcher.Table, error) {
	today := c.now().Format(dateLayout)
	return c.bars(ctx, symbol, "1m", today, today)
}

// DailyBar retrieves today's daily bar.
func (c *Client) DailyBar(ctx context.Context, symbol string) (fetcher.Table, error) {
	today := c.now().Format(dateLayout)
	return c.bars(ctx, symbol, "1D", today, today)
}

// DailyHistory retrieves daily bars between start and end inclusive.
func (c *Client) DailyHistory(ctx context.Context, symbol string, start, end time.Time) (fetcher.Table, error) {
	return c.bars(ctx, symbol, "1D", start.Format(dateLayout), end.Format(dateLayout))
}

func (c *Client) bars(ctx context.Context, symbol, resolution, from, to string) (fetcher.Table, error) {
	var env envelope[fetcher.Table]
	err := c.get(ctx, stockPath(symbol, "bars"), map[string]string{
		"resolution": resolution,
		"from":       from,
		"to":         to,
	}, &env)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// IntradayTicks retrieves up to pageSize matched ticks for the current session.
func (c *Client) IntradayTicks(ctx context.Context, symbol string, pageSize int) (fetcher.Table, error) {
	var env envelope[fetcher.Table]
	err := c.get(ctx, stockPath(symbol, "ticks"), map[string]string{
		"page_size": strconv.Itoa(pageSize),
	}, &env)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// FinancialStatements retrieves one statement in wide form.
func (c *Client) FinancialStatements(ctx context.Context, symbol string, report fetcher.ReportType, period string) (fetcher.Table, error) {
	var env envelope[fetcher.Table]
	err := c.get(ctx, stockPath(symbol, "financials"), map[string]string{
		"report": string(report),
		"period": period,
		"lang":   "en",
	}, &env)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// CompanyOverview retrieves the company overview record.
func (c *Client) CompanyOverview(ctx context.Context, symbol string) (fetcher.Row, error) {
	var env envelope[fetcher.Row]
	if err := c.get(ctx, stockPath(symbol, "overview"), nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// CompanyProfile retrieves the company profile record.
func (c *Client) CompanyProfile(ctx context.Context, symbol string) (fetcher.Row, error) {
	var env envelope[fetcher.Row]
	if err := c.get(ctx, stockPath(symbol, "profile"), nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

func stockPath(symbol, resource string) string {
	return "/v1/stocks/" + url.PathEscape(strings.ToUpper(symbol)) + "/" + resource
}

// statusHolder exposes the envelope fields get needs regardless of T.
type statusHolder interface {
	status() (string, string)
}

func (e *envelope[T]) status() (string, string) {
	return e.Status, e.Message
}

// get performs a GET and decodes the envelope into out. Non-2xx responses
// are classified into *fetcher.FetchError; an envelope with status "error"
// is returned with the provider's message verbatim.
func (c *Client) get(ctx context.Context, path string, params map[string]string, out statusHolder) error {
	req := c.client.R().
		SetContext(ctx).
		SetResult(out)
	if len(params) > 0 {
		req.SetQueryParams(params)
	}

	resp, err := req.Get(path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fetcher.NewNetworkError(err)
	}

	if !resp.IsSuccess() {
		msg := errorMessage(resp.String())
		if resp.StatusCode() == http.StatusTooManyRequests {
			return fetcher.NewRateLimitError(resp.StatusCode(), msg)
		}
		return fetcher.ClassifyHTTPError(resp.StatusCode(), msg)
	}

	if status, msg := out.status(); strings.EqualFold(status, "error") {
		if msg == "" {
			msg = "provider returned an error"
		}
		return fmt.Errorf("provider error: %s", msg)
	}
	return nil
}

// errorMessage extracts the envelope message from an error body, if any.
func errorMessage(body string) string {
	var env envelope[json.RawMessage]
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return ""
	}
	return env.Message
}
