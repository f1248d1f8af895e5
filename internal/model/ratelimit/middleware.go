// Package ratelimit provides local per-tier admission control via token
// buckets. Rejections surface as retryable rate-limit errors so the retry
// layer backs off instead of hammering an already saturated tier.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/cascade-ai/cascade/internal/model/configuration"
	llmerrors "github.com/cascade-ai/cascade/internal/model/errors"
	"github.com/cascade-ai/cascade/internal/model/transport"
)

// Stats tracks admission counters for observability.
type Stats struct {
	Allowed  atomic.Int64
	Rejected atomic.Int64
}

// StatsSnapshot is a point-in-time copy of the admission counters.
type StatsSnapshot struct {
	Allowed  int64 `json:"allowed"`
	Rejected int64 `json:"rejected"`
}

// Limiter holds one token bucket per tier id, created lazily.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
	stats    Stats
}

// NewLimiter creates a per-tier limiter from the rate limit configuration.
func NewLimiter(cfg configuration.RateLimitConfig) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      cfg.TokensPerSecond,
		burst:    cfg.BurstSize,
	}
}

// Allow consumes one token for the tier, reporting whether the request
// may proceed now.
func (l *Limiter) Allow(tierID string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[tierID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.rps), l.burst)
		l.limiters[tierID] = limiter
	}
	l.mu.Unlock()

	if limiter.Allow() {
		l.stats.Allowed.Add(1)
		return true
	}
	l.stats.Rejected.Add(1)
	return false
}

// Stats returns a snapshot of the admission counters.
func (l *Limiter) Stats() StatsSnapshot {
	return StatsSnapshot{
		Allowed:  l.stats.Allowed.Load(),
		Rejected: l.stats.Rejected.Load(),
	}
}

// retryAfter estimates how long until a token is available.
func (l *Limiter) retryAfter() time.Duration {
	if l.rps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / l.rps)
}

// NewMiddleware returns transport middleware that rejects requests above
// the tier's admission rate with a retryable rate-limit error carrying a
// suggested wait.
func NewMiddleware(limiter *Limiter) transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if !limiter.Allow(req.TierID) {
				return nil, &llmerrors.TransientError{
					TierID:     req.TierID,
					Type:       llmerrors.ErrorTypeRateLimit,
					Message:    "local admission rate exceeded",
					RetryAfter: limiter.retryAfter(),
				}
			}
			return next.Handle(ctx, req)
		})
	}
}
