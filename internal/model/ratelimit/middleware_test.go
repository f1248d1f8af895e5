package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascade-ai/cascade/internal/model/configuration"
	llmerrors "github.com/cascade-ai/cascade/internal/model/errors"
	"github.com/cascade-ai/cascade/internal/model/transport"
)

func TestLimiterRejectsAboveBurst(t *testing.T) {
	limiter := NewLimiter(configuration.RateLimitConfig{
		Enabled:         true,
		TokensPerSecond: 1,
		BurstSize:       2,
	})

	assert.True(t, limiter.Allow("tier-a"))
	assert.True(t, limiter.Allow("tier-a"))
	assert.False(t, limiter.Allow("tier-a"), "burst exhausted")

	// Buckets are per tier.
	assert.True(t, limiter.Allow("tier-b"))

	assert.Equal(t, int64(3), limiter.stats.Allowed.Load())
	assert.Equal(t, int64(1), limiter.stats.Rejected.Load())
}

func TestMiddlewareReturnsRetryableRateLimitError(t *testing.T) {
	limiter := NewLimiter(configuration.RateLimitConfig{
		Enabled:         true,
		TokensPerSecond: 1,
		BurstSize:       1,
	})
	mw := NewMiddleware(limiter)

	calls := 0
	h := mw(transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		calls++
		return &transport.Response{Content: "ok"}, nil
	}))

	req := &transport.Request{TierID: "tier-a"}
	_, err := h.Handle(context.Background(), req)
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), req)
	require.Error(t, err)

	var transient *llmerrors.TransientError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, llmerrors.ErrorTypeRateLimit, transient.Type)
	assert.Positive(t, transient.GetRetryAfter())
	assert.True(t, llmerrors.IsRetryable(err))

	assert.Equal(t, 1, calls, "rejected request never reaches the handler")
}
