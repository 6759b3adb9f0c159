// Package providers holds the shared outbound HTTP plumbing for AI provider
// adapters: JSON POST with deadline propagation, OTel spans, and structured
// status errors. Adapters in the subpackages map the provider-specific wire
// formats onto the orchestrator's request and completion types.
package providers

import (
	"fmt"
	"strconv"
	"time"
)

// StatusError captures a non-success HTTP status from a provider response.
// The body is kept for classification only; callers must never log it.
type StatusError struct {
	StatusCode     int
	Body           string
	RetryAfterSecs int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d", e.StatusCode)
}

// ParseRetryAfter fills RetryAfterSecs from a Retry-After header value,
// accepting either delta-seconds or an HTTP date.
func (e *StatusError) ParseRetryAfter(v string) {
	if v == "" {
		return
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		e.RetryAfterSecs = secs
		return
	}
	if at, err := time.Parse(time.RFC1123, v); err == nil {
		if d := time.Until(at); d > 0 {
			e.RetryAfterSecs = int(d.Seconds())
		}
	}
}

// MalformedError marks a response body that could not be parsed into the
// expected shape. It is always converted to a provider-error outcome rather
// than propagated as a panic or raw decode error.
type MalformedError struct {
	Provider string
	Reason   string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed response from %s: %s", e.Provider, e.Reason)
}
