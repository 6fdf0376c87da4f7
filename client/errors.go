package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrNotFound is returned when the server does not know the execution id.
// It is terminal: a resume against a missing execution must not be retried.
var ErrNotFound = errors.New("execution not found")

// ErrNoPersistedStream is returned by AttemptReconnect when no stream state
// was persisted for the session.
var ErrNoPersistedStream = errors.New("no persisted stream state")

// HTTPStatusError represents an HTTP error with a status code.
type HTTPStatusError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsTransient determines if an error is worth retrying with backoff.
// Transient errors are network failures and gateway-class HTTP statuses
// (502/503/504, plus 429). A user abort (context cancellation) and a missing
// execution are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, ErrNotFound) {
		return false
	}

	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
			http.StatusTooManyRequests:
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	return false
}
