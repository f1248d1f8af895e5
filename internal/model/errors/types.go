// Package errors defines the error taxonomy for tier invocations and the
// classification helpers the retry and fallback layers use to decide
// between retrying, advancing a fallback level, and routing to review.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType categorizes invocation failures for retry classification.
// The type decides whether an operation is retried with backoff, skipped
// to the next fallback step, or escalated straight to human review.
type ErrorType string

const (
	// ErrorTypeTimeout indicates a deadline was exceeded (retryable).
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeNetwork indicates connectivity problems (retryable).
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypeProvider indicates the backend itself failed (retryable).
	ErrorTypeProvider ErrorType = "provider_unavailable"

	// ErrorTypeRateLimit indicates local admission control rejected the
	// attempt (retryable with backoff).
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeCircuitBreaker indicates the tier's breaker is open; the
	// fallback chain advances without consuming a retry attempt.
	ErrorTypeCircuitBreaker ErrorType = "circuit_breaker"

	// ErrorTypeValidation indicates malformed input or output; never
	// retried, routes directly to human review.
	ErrorTypeValidation ErrorType = "validation_failed"

	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = "unknown"
)

// Sentinel errors shared across the orchestration core.
var (
	// ErrCacheMiss indicates no cache tier produced a match. Not a
	// failure: it advances the cache-only lookup or the fallback ladder.
	ErrCacheMiss = errors.New("cache miss")

	// ErrRetriesExhausted indicates every retry attempt failed.
	ErrRetriesExhausted = errors.New("all retries exhausted")

	// ErrNoEligibleTiers indicates a fallback level had no tier to try.
	ErrNoEligibleTiers = errors.New("no eligible tiers at level")

	// ErrUnknownTier indicates a tier id absent from the registry.
	ErrUnknownTier = errors.New("unknown tier")
)

// TransientError is a retryable invocation failure: timeouts, connectivity
// loss, backend hiccups, rate limiting. It drives the retry handler's
// backoff and the circuit breaker's failure count.
type TransientError struct {
	TierID     string        `json:"tier_id"`
	Type       ErrorType     `json:"type"`
	Message    string        `json:"message"`
	RetryAfter time.Duration `json:"retry_after,omitempty"` // backend-suggested wait, 0 if none
	Cause      error         `json:"-"`
}

// Error returns the formatted transient error with tier context.
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient %s error on tier %s: %s", e.Type, e.TierID, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As traversal.
func (e *TransientError) Unwrap() error { return e.Cause }

// GetRetryAfter returns the backend-suggested retry delay, 0 if none.
func (e *TransientError) GetRetryAfter() time.Duration { return e.RetryAfter }

// UnavailableError indicates a tier's circuit breaker is open. It causes
// an immediate fallback advance: no invocation was attempted, so it never
// counts against the breaker or the retry budget.
type UnavailableError struct {
	TierID  string `json:"tier_id"`
	State   string `json:"state"`    // "open" or "half-open"
	ResetAt int64  `json:"reset_at"` // unix time the breaker may admit a probe
}

// Error returns the formatted breaker error with state context.
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("tier %s unavailable: circuit breaker %s", e.TierID, e.State)
}

// ValidationError captures non-retryable input or response validation
// failures. The fallback chain routes these directly to human review,
// bypassing remaining fallback levels.
type ValidationError struct {
	TierID  string `json:"tier_id,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Error returns the formatted validation error with field context.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}
