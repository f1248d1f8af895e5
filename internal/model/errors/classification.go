package errors

import (
	"context"
	"errors"
	"time"
)

// RetryAfterProvider is implemented by error types that carry an explicit
// backend-suggested wait before the next attempt.
type RetryAfterProvider interface {
	// GetRetryAfter returns the recommended wait, or zero if none.
	GetRetryAfter() time.Duration
}

// IsRetryable determines whether an error warrants another attempt against
// the same tier. Breaker-open and validation errors are never retried;
// transient errors and plain deadline expiry are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Check specific types before interfaces so classification
	// takes precedence.
	var unavailable *UnavailableError
	if errors.As(err, &unavailable) {
		return false
	}

	var validation *ValidationError
	if errors.As(err, &validation) {
		return false
	}

	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var provider RetryAfterProvider
	if errors.As(err, &provider) {
		return true
	}

	// Conservative default: unknown errors are not retried.
	return false
}

// IsUnavailable reports whether the error is a breaker-open rejection.
func IsUnavailable(err error) bool {
	var unavailable *UnavailableError
	return errors.As(err, &unavailable)
}

// IsValidation reports whether the error is a non-retryable validation
// failure that must route to human review.
func IsValidation(err error) bool {
	var validation *ValidationError
	return errors.As(err, &validation)
}

// IsRateLimit reports whether the error is a rate-limit rejection. These
// are retryable but say nothing about tier health: the backpressure is
// local admission control, not a backend failure.
func IsRateLimit(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient) && transient.Type == ErrorTypeRateLimit
}

// RetryAfter extracts a backend-suggested retry delay from the error
// chain, or zero when no guidance is available.
func RetryAfter(err error) time.Duration {
	if err == nil {
		return 0
	}
	var provider RetryAfterProvider
	if errors.As(err, &provider) {
		return provider.GetRetryAfter()
	}
	return 0
}
