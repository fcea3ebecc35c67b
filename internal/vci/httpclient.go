package vci

import (
	"log/slog"
	"net/http"
	"time"

	"resty.dev/v3"
)

const (
	defaultRetryWaitTime    = 500 * time.Millisecond
	defaultRetryMaxWaitTime = 5 * time.Second
	defaultTimeout          = 30 * time.Second
)

// newHTTPClient creates a resty client that retries transport failures and
// server errors. Throttling (429) is not retried here; it surfaces as a
// rate-limit error and is retried by the caller's backoff policy.
func newHTTPClient(baseURL string, timeout time.Duration, retries int, logger *slog.Logger) *resty.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if retries < 0 {
		retries = 0
	}

	return resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(defaultRetryWaitTime).
		SetRetryMaxWaitTime(defaultRetryMaxWaitTime).
		AddRetryConditions(retryCondition).
		AddRetryHooks(retryLogger(logger))
}

// retryCondition determines whether a request should be retried based on the response and error
func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	switch code := r.StatusCode(); {
	case code == http.StatusTooManyRequests:
		return false
	case code == http.StatusRequestTimeout:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}

// retryLogger returns a hook that records each transport retry on logger.
func retryLogger(logger *slog.Logger) func(*resty.Response, error) {
	return func(r *resty.Response, err error) {
		attrs := []any{
			"url", r.Request.URL,
			"attempt", r.Request.Attempt,
		}
		if err != nil {
			logger.Warn("provider request failed, retrying", append(attrs, "error", err)...)
			return
		}
		logger.Warn("provider returned retryable status", append(attrs, "status_code", r.StatusCode())...)
	}
}
