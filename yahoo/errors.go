package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Keksclan/tickercache/marketdata"
)

var (
	// ErrNotFound is returned for unknown symbols and empty results.
	ErrNotFound = fmt.Errorf("yahoo: %w", marketdata.ErrNotFound)
	// ErrRateLimited is returned when Yahoo answers 429.
	ErrRateLimited = fmt.Errorf("yahoo: rate limited: %w", marketdata.ErrUnavailable)
)

// StatusError is returned for unexpected HTTP statuses.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("yahoo: %s: unexpected status %d", e.URL, e.Code)
}

// Unwrap reports server-side failures as marketdata.ErrUnavailable.
func (e *StatusError) Unwrap() error {
	if e.Code >= http.StatusInternalServerError {
		return marketdata.ErrUnavailable
	}
	return nil
}

// Retryable reports whether err is worth another attempt: throttling,
// server errors and transport failures. Context errors and client errors
// are final.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrRateLimited):
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= http.StatusInternalServerError
	}
	var te *transportError
	return errors.As(err, &te)
}

// CountsAgainstBreaker reports whether err indicates an unhealthy provider.
// Unknown symbols and caller cancellation do not.
func CountsAgainstBreaker(err error) bool {
	return !errors.Is(err, marketdata.ErrNotFound) && !errors.Is(err, context.Canceled)
}

// transportError marks failures below HTTP (DNS, connection resets,
// truncated bodies).
type transportError struct {
	err error
}

func (e *transportError) Error() string { return "yahoo: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }
