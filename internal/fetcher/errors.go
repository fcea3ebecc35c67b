package fetcher

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the category of error that occurred during a provider call
type ErrorType string

const (
	// ErrorTypeNetwork indicates a network-level error (connection refused, DNS, etc.)
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeRateLimit indicates the request was rejected due to rate limiting (HTTP 429)
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeServer indicates a server error (HTTP 5xx)
	ErrorTypeServer ErrorType = "server"
	// ErrorTypeClient indicates a client error (HTTP 4xx except 429)
	ErrorTypeClient ErrorType = "client"
	// ErrorTypeValidation indicates the response was received but data validation failed
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeUnknown indicates an error of unknown type
	ErrorTypeUnknown ErrorType = "unknown"
)

// FetchError represents a structured error from a provider call
type FetchError struct {
	Type       ErrorType
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// NewNetworkError creates a network error
func NewNetworkError(cause error) *FetchError {
	return &FetchError{
		Type:    ErrorTypeNetwork,
		Message: "network request failed",
		Cause:   cause,
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(statusCode int, message string) *FetchError {
	if message == "" {
		message = "rate limit exceeded"
	}
	return &FetchError{
		Type:       ErrorTypeRateLimit,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *FetchError {
	return &FetchError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// ClassifyHTTPError classifies an HTTP status code into an appropriate FetchError
func ClassifyHTTPError(statusCode int, message string) *FetchError {
	switch {
	case statusCode == 429:
		return NewRateLimitError(statusCode, message)
	case statusCode >= 500:
		return &FetchError{Type: ErrorTypeServer, StatusCode: statusCode, Message: "server returned an error"}
	case statusCode >= 400:
		if message == "" {
			message = fmt.Sprintf("client error: HTTP %d", statusCode)
		}
		return &FetchError{Type: ErrorTypeClient, StatusCode: statusCode, Message: message}
	default:
		return &FetchError{
			Type:       ErrorTypeUnknown,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("unexpected status code: %d", statusCode),
		}
	}
}

// Class is the retry classification of a provider failure.
type Class int

const (
	// ClassHard failures fail the symbol for the current round.
	ClassHard Class = iota
	// ClassThrottled failures are retried with backoff.
	ClassThrottled
)

func (c Class) String() string {
	if c == ClassThrottled {
		return "throttled"
	}
	return "hard"
}

var (
	// ErrRateLimited is the canonical throttling error.
	ErrRateLimited = errors.New("rate limited")
	// ErrNoData is returned when none of the requested kinds produced rows.
	ErrNoData = errors.New("no data returned")
)

// throttlePatterns are matched case-insensitively against provider error text.
var throttlePatterns = []string{
	"rate limit exceeded",
	"too many requests",
	"gửi quá nhiều request",
	"thử lại sau",
}

// SymbolError is a classified failure for one symbol.
type SymbolError struct {
	Symbol string
	Kind   Kind
	Class  Class
	Err    error
}

func (e *SymbolError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Symbol, e.Kind, e.Class, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Symbol, e.Class, e.Err)
}

func (e *SymbolError) Unwrap() error {
	return e.Err
}

// Is makes throttled symbol errors match ErrRateLimited.
func (e *SymbolError) Is(target error) bool {
	return target == ErrRateLimited && e.Class == ClassThrottled
}

// Classify maps a raw provider error onto the closed {Throttled, Hard} set.
func Classify(err error) Class {
	if err == nil {
		return ClassHard
	}
	var se *SymbolError
	if errors.As(err, &se) {
		return se.Class
	}
	if errors.Is(err, ErrRateLimited) {
		return ClassThrottled
	}
	var fe *FetchError
	if errors.As(err, &fe) && fe.Type == ErrorTypeRateLimit {
		return ClassThrottled
	}
	msg := strings.ToLower(err.Error())
	for _, p := range throttlePatterns {
		if strings.Contains(msg, p) {
			return ClassThrottled
		}
	}
	return ClassHard
}

// IsThrottled reports whether err was classified as throttling.
func IsThrottled(err error) bool {
	var se *SymbolError
	if errors.As(err, &se) {
		return se.Class == ClassThrottled
	}
	return errors.Is(err, ErrRateLimited)
}

func newSymbolError(symbol string, kind Kind, err error) *SymbolError {
	return &SymbolError{
		Symbol: symbol,
		Kind:   kind,
		Class:  Classify(err),
		Err:    err,
	}
}
