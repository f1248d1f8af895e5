// Package fallback implements the degradation ladder that guarantees an
// outcome for every request. Each rung tries a narrower set of model
// tiers; when live invocation is exhausted the ladder serves from cache,
// and when the cache misses it parks the request for human review. The
// ladder is monotonic within a request: the service level only moves
// down, never back up.
package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/cascade-ai/cascade/internal/domain"
	"github.com/cascade-ai/cascade/internal/model/cache"
	"github.com/cascade-ai/cascade/internal/model/circuitbreaker"
	"github.com/cascade-ai/cascade/internal/model/configuration"
	llmerrors "github.com/cascade-ai/cascade/internal/model/errors"
	"github.com/cascade-ai/cascade/internal/model/ratelimit"
	"github.com/cascade-ai/cascade/internal/model/retry"
	"github.com/cascade-ai/cascade/internal/model/transport"
	"github.com/cascade-ai/cascade/internal/review"
)

// handoffAck is the response body for requests parked at the handoff
// level. The real answer arrives out of band once a human resolves it.
const handoffAck = "Your request has been queued for manual review. A specialist will follow up."

// Result is the outcome of one ladder walk. Exactly one of two shapes:
// a served response (Pending false) or a parked handoff (Pending true
// with the handoff id as the claim ticket).
type Result struct {
	Response  *transport.Response
	Level     domain.ServiceLevel
	Pending   bool
	HandoffID string
}

// Stats tracks ladder outcomes per level for observability.
type Stats struct {
	FullServed     atomic.Int64
	DegradedServed atomic.Int64
	MinimalServed  atomic.Int64
	CacheServed    atomic.Int64
	Handoffs       atomic.Int64
}

// Chain walks the degradation ladder. Each tier invocation goes through
// that tier's middleware pipeline: retry around circuit breaking around
// rate limiting around the bare invoker, with successful responses written
// through to the cache.
type Chain struct {
	registry  *configuration.Registry
	breakers  *circuitbreaker.Registry
	cache     *cache.Cache
	queue     review.Queue
	pipelines map[string]transport.Handler

	stats  Stats
	logger *slog.Logger
}

// NewChain builds the ladder and one middleware pipeline per tier.
// The cache may be nil, which turns the cache-only level into a straight
// pass to handoff. The queue must not be nil: the ladder's guarantee
// depends on it.
func NewChain(
	cfg *configuration.Config,
	registry *configuration.Registry,
	invoker transport.Invoker,
	responseCache *cache.Cache,
	queue review.Queue,
) (*Chain, error) {
	if queue == nil {
		return nil, fmt.Errorf("fallback: review queue is required")
	}

	breakers := circuitbreaker.NewRegistry(cfg.CircuitBreaker)
	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter(cfg.RateLimit)
	}

	core := transport.NewInvokerHandler(invoker)
	pipelines := make(map[string]transport.Handler, registry.Len())
	for _, tier := range registry.All() {
		retryMW, err := retry.NewMiddleware(tier.Retry)
		if err != nil {
			return nil, fmt.Errorf("fallback: tier %s: %w", tier.ID, err)
		}

		middlewares := []transport.Middleware{retryMW, circuitbreaker.NewMiddleware(breakers)}
		if limiter != nil {
			middlewares = append(middlewares, ratelimit.NewMiddleware(limiter))
		}
		if responseCache != nil && cfg.Cache.Enabled {
			middlewares = append(middlewares, cache.NewPopulateMiddleware(responseCache))
		}
		pipelines[tier.ID] = transport.Chain(core, middlewares...)
	}

	chainCache := responseCache
	if !cfg.Cache.Enabled {
		chainCache = nil
	}

	return &Chain{
		registry:  registry,
		breakers:  breakers,
		cache:     chainCache,
		queue:     queue,
		pipelines: pipelines,
		logger:    slog.Default().With("component", "fallback"),
	}, nil
}

// Breakers exposes the per-tier breaker registry for health reporting.
func (c *Chain) Breakers() *circuitbreaker.Registry { return c.breakers }

// StatsSnapshot is a point-in-time copy of the ladder outcome counters.
type StatsSnapshot struct {
	FullServed     int64 `json:"full_served"`
	DegradedServed int64 `json:"degraded_served"`
	MinimalServed  int64 `json:"minimal_served"`
	CacheServed    int64 `json:"cache_served"`
	Handoffs       int64 `json:"handoffs"`
}

// Stats returns a snapshot of the ladder outcome counters.
func (c *Chain) Stats() StatsSnapshot {
	return StatsSnapshot{
		FullServed:     c.stats.FullServed.Load(),
		DegradedServed: c.stats.DegradedServed.Load(),
		MinimalServed:  c.stats.MinimalServed.Load(),
		CacheServed:    c.stats.CacheServed.Load(),
		Handoffs:       c.stats.Handoffs.Load(),
	}
}

// Execute walks the ladder top to bottom until a rung produces a result.
// The state, when non-nil, records the deepest level reached and every
// model invoked; it may be nil for callers outside a workflow run.
// Execute returns an error only for malformed requests; operational
// failures always degrade instead.
func (c *Chain) Execute(ctx context.Context, state *domain.WorkflowState, req *transport.Request) (*Result, error) {
	if req.Prompt == "" {
		return nil, &llmerrors.ValidationError{Field: "prompt", Message: "must not be empty"}
	}
	if req.Fingerprint == "" {
		req.Fingerprint = transport.Fingerprint(req.Prompt)
	}

	for level := domain.LevelFull; ; level = level.Next() {
		recordLevel(state, level)

		switch level {
		case domain.LevelFull, domain.LevelDegraded, domain.LevelMinimal:
			result, done := c.tryTiers(ctx, state, req, level)
			if done {
				return result, nil
			}

		case domain.LevelCacheOnly:
			if resp := c.tryCache(ctx, req); resp != nil {
				c.stats.CacheServed.Add(1)
				return &Result{Response: resp, Level: level}, nil
			}

		case domain.LevelHumanHandoff:
			return c.handoff(ctx, state, req, "all fallback levels exhausted")
		}
	}
}

// ExecuteTier invokes one pinned tier through its pipeline, bypassing the
// ladder. Used by consensus voting, where each vote must come from its
// assigned tier or not at all.
func (c *Chain) ExecuteTier(ctx context.Context, state *domain.WorkflowState, req *transport.Request, tierID string) (*transport.Response, error) {
	pipeline, ok := c.pipelines[tierID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", llmerrors.ErrUnknownTier, tierID)
	}
	if req.Fingerprint == "" {
		req.Fingerprint = transport.Fingerprint(req.Prompt)
	}

	tierReq := *req
	tierReq.TierID = tierID
	resp, err := pipeline.Handle(ctx, &tierReq)
	if err != nil {
		return nil, err
	}
	if state != nil {
		state.RecordModel(tierID)
	}
	return resp, nil
}

// tryTiers attempts every tier eligible at the level in capability order.
// Returns done=true with a result on success or on a validation failure,
// which jumps the ladder straight to handoff.
func (c *Chain) tryTiers(ctx context.Context, state *domain.WorkflowState, req *transport.Request, level domain.ServiceLevel) (*Result, bool) {
	for _, tier := range c.registry.EligibleAt(level) {
		tierReq := *req
		tierReq.TierID = tier.ID

		resp, err := c.pipelines[tier.ID].Handle(ctx, &tierReq)
		if err == nil {
			if state != nil {
				state.RecordModel(tier.ID)
			}
			c.recordServed(level)
			c.logger.Debug("request served",
				"tier", tier.ID,
				"level", level.String(),
				"trace_id", req.TraceID)
			return &Result{Response: resp, Level: level}, true
		}

		if llmerrors.IsValidation(err) {
			recordLevel(state, domain.LevelHumanHandoff)
			triggerReview(state, "validation_failed")
			result, _ := c.handoff(ctx, state, req, fmt.Sprintf("validation failed: %v", err))
			return result, true
		}

		c.logger.Warn("tier attempt failed",
			"tier", tier.ID,
			"level", level.String(),
			"breaker_open", llmerrors.IsUnavailable(err),
			"error", err)
	}
	return nil, false
}

// tryCache serves from the response cache, returning nil on miss or when
// no cache is configured.
func (c *Chain) tryCache(ctx context.Context, req *transport.Request) *transport.Response {
	if c.cache == nil {
		return nil
	}
	resp, err := c.cache.Get(ctx, req.Prompt, req.Fingerprint)
	if err != nil {
		return nil
	}
	c.logger.Info("request served from cache",
		"source", string(resp.Source),
		"trace_id", req.TraceID)
	return resp
}

// handoff parks the request on the review queue. This is the ladder's
// terminal rung and cannot refuse work.
func (c *Chain) handoff(ctx context.Context, state *domain.WorkflowState, req *transport.Request, reason string) (*Result, error) {
	handoffReq := &review.Request{
		Prompt:   req.Prompt,
		Reasons:  []string{reason},
		Snapshot: req.Context,
		Priority: review.PriorityFor(req.Context),
	}
	if state != nil {
		handoffReq.RunID = state.RunID
		triggerReview(state, "human_handoff")
	}

	id, err := c.queue.Enqueue(ctx, handoffReq)
	if err != nil {
		// The queue contract forbids capacity failures; anything else is
		// a programming error worth surfacing loudly.
		return nil, fmt.Errorf("fallback: handoff enqueue: %w", err)
	}

	c.stats.Handoffs.Add(1)
	c.logger.Info("request handed off for review",
		"handoff_id", id,
		"priority", handoffReq.Priority,
		"trace_id", req.TraceID)

	return &Result{
		Response: &transport.Response{
			Content:    handoffAck,
			Source:     transport.SourceHumanHandoff,
			Confidence: 0,
		},
		Level:     domain.LevelHumanHandoff,
		Pending:   true,
		HandoffID: id,
	}, nil
}

func (c *Chain) recordServed(level domain.ServiceLevel) {
	switch level {
	case domain.LevelFull:
		c.stats.FullServed.Add(1)
	case domain.LevelDegraded:
		c.stats.DegradedServed.Add(1)
	case domain.LevelMinimal:
		c.stats.MinimalServed.Add(1)
	}
}

func recordLevel(state *domain.WorkflowState, level domain.ServiceLevel) {
	if state != nil {
		state.RecordServiceLevel(level)
	}
}

func triggerReview(state *domain.WorkflowState, reason string) {
	if state != nil {
		state.TriggerReview(reason)
	}
}
