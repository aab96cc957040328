package helpdesk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spec-kit/rumi-monitor/internal/governor"
)

// ConnectivityError means the pre-flight probe failed.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("helpdesk unreachable: %v", e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// CircuitOpenError is returned without any network I/O while the breaker is tripped.
type CircuitOpenError struct {
	ConsecutiveErrors int
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open after %d consecutive errors", e.ConsecutiveErrors)
}

// RateLimitError is an HTTP 429 from the helpdesk.
type RateLimitError struct {
	Path       string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited on %s (retry after %s)", e.Path, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited on %s", e.Path)
}

// HTTPError is any other non-2xx response.
type HTTPError struct {
	Status     int
	StatusText string
	Path       string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("helpdesk %s: %d %s", e.Path, e.Status, e.StatusText)
}

// AuthTokenMissingError is returned by mutating calls when no anti-forgery
// token could be discovered.
type AuthTokenMissingError struct {
	Tried []string
}

func (e *AuthTokenMissingError) Error() string {
	return fmt.Sprintf("anti-forgery token not found (tried %s)", strings.Join(e.Tried, ", "))
}

// IsRateLimit reports whether err is (or wraps) a RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsCircuitOpen reports whether err is (or wraps) a CircuitOpenError.
func IsCircuitOpen(err error) bool {
	var co *CircuitOpenError
	return errors.As(err, &co)
}

// Classify maps a request error onto breaker accounting.
func Classify(err error) governor.FailureKind {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return governor.FailureRateLimited
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return governor.ClassifyStatus(he.Status)
	}
	var tm *AuthTokenMissingError
	if errors.As(err, &tm) {
		return governor.FailureClient
	}
	return governor.FailureServer
}

// retryable excludes 429s and errors a second attempt cannot fix.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var (
		rl *RateLimitError
		co *CircuitOpenError
		tm *AuthTokenMissingError
	)
	return !errors.As(err, &rl) && !errors.As(err, &co) && !errors.As(err, &tm)
}

func newHTTPError(path string, status int, body string) *HTTPError {
	return &HTTPError{Status: status, StatusText: http.StatusText(status), Path: path, Body: body}
}
