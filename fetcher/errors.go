package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrTimeout indicates the render wait or request exceeded its bound.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrNavigation indicates the page failed to load at the network or HTTP level.
type ErrNavigation struct {
	Err error
}

func (e ErrNavigation) Error() string {
	return fmt.Errorf("navigation: %w", e.Err).Error()
}

func (e ErrNavigation) Unwrap() error {
	return e.Err
}

// ErrBlocked indicates an anti-bot interstitial was served instead of the page.
type ErrBlocked struct {
	Marker string
}

func (e ErrBlocked) Error() string {
	return fmt.Sprintf("blocked: challenge marker %q detected", e.Marker)
}

// Classify maps low-level fetch failures onto the transient error taxonomy.
func Classify(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}

	if statusCode >= http.StatusBadRequest {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		return ErrNavigation{Err: wrapped}
	}

	if err == nil {
		return nil
	}
	return ErrNavigation{Err: err}
}

// TypeLabel buckets a fetch error for metrics and the errors-by-type map.
func TypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var blocked ErrBlocked
	if errors.As(err, &blocked) {
		return "blocked"
	}
	var navigation ErrNavigation
	if errors.As(err, &navigation) {
		return "navigation"
	}
	return "other"
}

// Transient reports whether the error belongs to the retryable taxonomy.
func Transient(err error) bool {
	switch TypeLabel(err) {
	case "timeout", "navigation", "blocked":
		return true
	}
	return false
}
