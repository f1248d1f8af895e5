package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascade-ai/cascade/internal/model/configuration"
	llmerrors "github.com/cascade-ai/cascade/internal/model/errors"
	"github.com/cascade-ai/cascade/internal/model/transport"
)

func fastPolicy(maxAttempts int) configuration.RetryPolicy {
	return configuration.RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   configuration.Duration(time.Millisecond),
		MaxDelay:    configuration.Duration(5 * time.Millisecond),
		Multiplier:  2.0,
		Jitter:      0,
	}
}

func transientErr() error {
	return &llmerrors.TransientError{TierID: "tier-a", Type: llmerrors.ErrorTypeTimeout, Message: "slow"}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	mw, err := NewMiddleware(fastPolicy(3))
	require.NoError(t, err)

	calls := 0
	h := mw(transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		calls++
		if calls < 3 {
			return nil, transientErr()
		}
		return &transport.Response{Content: "ok"}, nil
	}))

	resp, err := h.Handle(context.Background(), &transport.Request{TierID: "tier-a"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	stats := &Stats{}
	mw, err := NewMiddlewareWithStats(fastPolicy(3), stats)
	require.NoError(t, err)

	calls := 0
	h := mw(transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		calls++
		return nil, transientErr()
	}))

	_, err = h.Handle(context.Background(), &transport.Request{TierID: "tier-a"})
	require.ErrorIs(t, err, llmerrors.ErrRetriesExhausted)

	var transient *llmerrors.TransientError
	assert.ErrorAs(t, err, &transient, "original cause stays in the chain")

	assert.Equal(t, 3, calls)
	assert.Equal(t, int64(3), stats.Attempts.Load())
	assert.Equal(t, int64(2), stats.Retries.Load())
	assert.Equal(t, int64(1), stats.Exhausted.Load())
}

func TestRetryStopsOnNonRetryableErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"breaker open", &llmerrors.UnavailableError{TierID: "tier-a", State: "open"}},
		{"validation", &llmerrors.ValidationError{Message: "bad"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw, err := NewMiddleware(fastPolicy(5))
			require.NoError(t, err)

			calls := 0
			h := mw(transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
				calls++
				return nil, tt.err
			}))

			_, err = h.Handle(context.Background(), &transport.Request{TierID: "tier-a"})
			require.Error(t, err)
			assert.Equal(t, 1, calls, "non-retryable errors must not consume attempts")
			assert.NotErrorIs(t, err, llmerrors.ErrRetriesExhausted)
		})
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	policy := fastPolicy(3)
	policy.BaseDelay = configuration.Duration(time.Second)
	mw, err := NewMiddleware(policy)
	require.NoError(t, err)

	h := mw(transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		return nil, transientErr()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = h.Handle(ctx, &transport.Request{TierID: "tier-a"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRetryHonorsBackendRetryAfter(t *testing.T) {
	mw, err := NewMiddleware(fastPolicy(2))
	require.NoError(t, err)

	h := mw(transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		return nil, &llmerrors.TransientError{
			TierID:     "tier-a",
			Type:       llmerrors.ErrorTypeRateLimit,
			Message:    "throttled",
			RetryAfter: 30 * time.Millisecond,
		}
	}))

	start := time.Now()
	_, err = h.Handle(context.Background(), &transport.Request{TierID: "tier-a"})
	require.ErrorIs(t, err, llmerrors.ErrRetriesExhausted)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestNewMiddlewareRejectsInvalidPolicy(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*configuration.RetryPolicy)
	}{
		{"zero attempts", func(p *configuration.RetryPolicy) { p.MaxAttempts = 0 }},
		{"zero base delay", func(p *configuration.RetryPolicy) { p.BaseDelay = 0 }},
		{"multiplier below one", func(p *configuration.RetryPolicy) { p.Multiplier = 0.9 }},
		{"jitter of one", func(p *configuration.RetryPolicy) { p.Jitter = 1.0 }},
		{"negative jitter", func(p *configuration.RetryPolicy) { p.Jitter = -0.1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := fastPolicy(3)
			tt.mutate(&policy)
			_, err := NewMiddleware(policy)
			assert.Error(t, err)
		})
	}
}

func TestBackoffGrowthAndClamp(t *testing.T) {
	policy := configuration.RetryPolicy{
		MaxAttempts: 10,
		BaseDelay:   configuration.Duration(100 * time.Millisecond),
		MaxDelay:    configuration.Duration(time.Second),
		Multiplier:  2.0,
		Jitter:      0,
	}

	assert.Equal(t, 100*time.Millisecond, Backoff(policy, 1))
	assert.Equal(t, 200*time.Millisecond, Backoff(policy, 2))
	assert.Equal(t, 400*time.Millisecond, Backoff(policy, 3))
	assert.Equal(t, 800*time.Millisecond, Backoff(policy, 4))
	assert.Equal(t, time.Second, Backoff(policy, 5), "clamped at max delay")
	assert.Equal(t, time.Second, Backoff(policy, 9))
}

func TestBackoffJitterBounds(t *testing.T) {
	policy := configuration.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   configuration.Duration(100 * time.Millisecond),
		MaxDelay:    configuration.Duration(time.Second),
		Multiplier:  2.0,
		Jitter:      0.25,
	}

	for i := 0; i < 200; i++ {
		d := Backoff(policy, 2)
		assert.GreaterOrEqual(t, d, 150*time.Millisecond)
		assert.LessOrEqual(t, d, 250*time.Millisecond)
	}
}
