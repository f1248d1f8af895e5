// Package retry provides transport middleware that re-attempts transient
// tier failures with exponential backoff and proportional jitter. Only
// errors classified retryable consume attempts; breaker rejections and
// validation failures pass through untouched so the fallback chain can
// advance immediately.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/cascade-ai/cascade/internal/model/configuration"
	llmerrors "github.com/cascade-ai/cascade/internal/model/errors"
	"github.com/cascade-ai/cascade/internal/model/transport"
)

// Stats tracks retry activity counters for observability.
type Stats struct {
	Attempts  atomic.Int64
	Retries   atomic.Int64
	Exhausted atomic.Int64
}

// NewMiddleware creates retry middleware from a tier's retry policy.
// The policy must already be validated; a nonsensical policy is rejected
// here as a construction error rather than silently normalized.
func NewMiddleware(policy configuration.RetryPolicy) (transport.Middleware, error) {
	return NewMiddlewareWithStats(policy, &Stats{})
}

// NewMiddlewareWithStats creates retry middleware that records activity
// into the provided stats.
func NewMiddlewareWithStats(policy configuration.RetryPolicy, stats *Stats) (transport.Middleware, error) {
	if policy.MaxAttempts < 1 {
		return nil, fmt.Errorf("retry: max attempts must be >= 1, got %d", policy.MaxAttempts)
	}
	if policy.BaseDelay <= 0 {
		return nil, fmt.Errorf("retry: base delay must be positive, got %v", policy.BaseDelay.Std())
	}
	if policy.Multiplier < 1 {
		return nil, fmt.Errorf("retry: multiplier must be >= 1, got %v", policy.Multiplier)
	}
	if policy.Jitter < 0 || policy.Jitter >= 1 {
		return nil, fmt.Errorf("retry: jitter must be in [0,1), got %v", policy.Jitter)
	}

	logger := slog.Default().With("component", "retry")

	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			var lastErr error

			for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
				stats.Attempts.Add(1)

				resp, err := next.Handle(ctx, req)
				if err == nil {
					return resp, nil
				}
				lastErr = err

				if !llmerrors.IsRetryable(err) {
					return nil, err
				}
				if attempt == policy.MaxAttempts {
					break
				}

				delay := Backoff(policy, attempt)
				if suggested := llmerrors.RetryAfter(err); suggested > delay {
					delay = suggested
				}

				logger.Debug("retrying after transient failure",
					"tier", req.TierID,
					"attempt", attempt,
					"delay", delay,
					"error", err)
				stats.Retries.Add(1)

				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}

			stats.Exhausted.Add(1)
			return nil, fmt.Errorf("%w after %d attempts on tier %s: %w",
				llmerrors.ErrRetriesExhausted, policy.MaxAttempts, req.TierID, lastErr)
		})
	}, nil
}

// Backoff computes the delay before retrying after the given attempt
// (1-based). The delay grows exponentially from BaseDelay by Multiplier,
// clamps at MaxDelay, then spreads uniformly into
// [d*(1-jitter), d*(1+jitter)].
func Backoff(policy configuration.RetryPolicy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(policy.BaseDelay.Std())
	for i := 1; i < attempt; i++ {
		delay *= policy.Multiplier
		if maxDelay := float64(policy.MaxDelay.Std()); maxDelay > 0 && delay >= maxDelay {
			delay = maxDelay
			break
		}
	}

	if policy.Jitter > 0 {
		// Uniform in [d*(1-j), d*(1+j)].
		spread := delay * policy.Jitter
		delay = delay - spread + rand.Float64()*2*spread
	}

	return time.Duration(delay)
}
