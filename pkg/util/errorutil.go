package util

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spec-kit/rumi-monitor/internal/helpdesk"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic and helpdesk errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}

	var (
		connErr    *helpdesk.ConnectivityError
		circuitErr *helpdesk.CircuitOpenError
		rateErr    *helpdesk.RateLimitError
		tokenErr   *helpdesk.AuthTokenMissingError
		httpErr    *helpdesk.HTTPError
	)
	switch {
	case errors.As(err, &connErr):
		return &DomainError{Code: "HELPDESK_UNREACHABLE", Message: "helpdesk connectivity check failed", HTTPStatus: http.StatusBadGateway, Err: err}
	case errors.As(err, &circuitErr):
		return &DomainError{
			Code:       "CIRCUIT_OPEN",
			Message:    "helpdesk requests paused after repeated failures",
			HTTPStatus: http.StatusServiceUnavailable,
			Details:    map[string]any{"consecutive_errors": circuitErr.ConsecutiveErrors},
			Err:        err,
		}
	case errors.As(err, &rateErr):
		details := map[string]any{}
		if rateErr.RetryAfter > 0 {
			details["retry_after_seconds"] = rateErr.RetryAfter.Seconds()
		}
		return &DomainError{Code: "RATE_LIMITED", Message: "helpdesk rate limit reached", HTTPStatus: http.StatusTooManyRequests, Details: details, Err: err}
	case errors.As(err, &tokenErr):
		return &DomainError{
			Code:       "AUTH_TOKEN_MISSING",
			Message:    "anti-forgery token not found",
			HTTPStatus: http.StatusFailedDependency,
			Details:    map[string]any{"tried": tokenErr.Tried},
			Err:        err,
		}
	case errors.As(err, &httpErr):
		status := http.StatusBadGateway
		if httpErr.Status == http.StatusNotFound {
			status = http.StatusNotFound
		}
		return &DomainError{
			Code:       "HELPDESK_ERROR",
			Message:    fmt.Sprintf("helpdesk responded %d", httpErr.Status),
			HTTPStatus: status,
			Details:    map[string]any{"status": httpErr.Status, "path": httpErr.Path},
			Err:        err,
		}
	case errors.Is(err, context.DeadlineExceeded):
		return &DomainError{Code: "TIMEOUT", Message: "request timed out", HTTPStatus: http.StatusGatewayTimeout, Err: err}
	}

	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
