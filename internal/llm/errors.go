package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Sentinel errors for provider failure classes. Callers use errors.Is to
// decide between retry, surface, and fail-closed handling.
var (
	// ErrSafetyBlocked means the provider refused the content via its own
	// safety filtering. Never retried; the caller must fail closed.
	ErrSafetyBlocked = errors.New("content blocked by provider safety filter")

	// ErrRateLimited means the provider returned 429 after client-side retries.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrNoAPIKey means the client was constructed without credentials.
	ErrNoAPIKey = errors.New("API key not configured")
)

// SafetyBlockError wraps ErrSafetyBlocked with the provider's stated reason.
type SafetyBlockError struct {
	Reason string
}

func (e *SafetyBlockError) Error() string {
	if e.Reason == "" {
		return ErrSafetyBlocked.Error()
	}
	return fmt.Sprintf("content blocked by provider safety filter: %s", e.Reason)
}

func (e *SafetyBlockError) Unwrap() error { return ErrSafetyBlocked }

// IsSafetyBlocked reports whether err is a provider safety refusal.
func IsSafetyBlocked(err error) bool {
	return errors.Is(err, ErrSafetyBlocked)
}

// IsUnavailable reports whether err is a transient transport/service failure
// that a caller may retry: timeouts, rate limits, connection errors.
// Safety blocks are never "unavailable" - they are policy signals.
func IsUnavailable(err error) bool {
	if err == nil || IsSafetyBlocked(err) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// HTTP 5xx surfaced as text by the provider clients
	msg := err.Error()
	for _, marker := range []string{"status 500", "status 502", "status 503", "status 529", "request failed"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
