// Package retry wraps a fallible call with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Defaults mirror the provider's throttling behaviour: five attempts, waits
// doubling from one second, floored at five seconds and capped at a minute.
const (
	DefaultMaxAttempts = 5
	DefaultBaseWait    = 1 * time.Second
	DefaultMinWait     = 5 * time.Second
	DefaultMaxWait     = 60 * time.Second
)

// ErrExhausted wraps the last retryable error once all attempts are used.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy describes when and how long to retry.
type Policy struct {
	MaxAttempts int
	BaseWait    time.Duration
	MinWait     time.Duration
	MaxWait     time.Duration

	// Retryable decides whether an error triggers another attempt.
	// A nil Retryable never retries.
	Retryable func(error) bool

	Logger *slog.Logger
}

// DefaultPolicy returns the default policy retrying errors accepted by retryable.
func DefaultPolicy(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseWait:    DefaultBaseWait,
		MinWait:     DefaultMinWait,
		MaxWait:     DefaultMaxWait,
		Retryable:   retryable,
	}
}

// Backoff returns the wait after the given failed attempt (1-based):
// BaseWait * 2^(attempt-1), clamped to [MinWait, MaxWait].
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	wait := p.BaseWait
	for i := 1; i < attempt && wait < p.MaxWait; i++ {
		wait *= 2
	}
	if wait < p.MinWait {
		wait = p.MinWait
	}
	if p.MaxWait > 0 && wait > p.MaxWait {
		wait = p.MaxWait
	}
	return wait
}

// Do calls op until it succeeds, fails with a non-retryable error, or the
// policy's attempts are used up. Waits between attempts honour ctx.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return zero, err
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		wait := p.Backoff(attempt)
		logger.Debug("retrying after retryable error",
			"attempt", attempt,
			"max_attempts", attempts,
			"wait", wait,
			"error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}
