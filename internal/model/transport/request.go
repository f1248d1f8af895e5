package transport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Source identifies where a response came from on the degradation ladder.
type Source string

const (
	// SourcePrimary is a live tier invocation.
	SourcePrimary Source = "primary"

	// SourceCacheExact is an exact-fingerprint cache hit.
	SourceCacheExact Source = "cache_exact"

	// SourceCacheSemantic is a similarity cache hit above threshold.
	SourceCacheSemantic Source = "cache_semantic"

	// SourceCacheTemplate is a template-pattern cache hit.
	SourceCacheTemplate Source = "cache_template"

	// SourceHumanHandoff marks a pending manual-review outcome.
	SourceHumanHandoff Source = "human_handoff"
)

// Request is one logical invocation of a model tier.
type Request struct {
	// TierID selects the tier. Set by the fallback chain per attempt.
	TierID string `json:"tier_id"`

	// Prompt is the rendered input to the model.
	Prompt string `json:"prompt"`

	// Fingerprint is the cache key for the prompt. Computed once per
	// logical request via Fingerprint.
	Fingerprint string `json:"fingerprint"`

	// Timeout bounds a single attempt; zero means the caller's context
	// deadline alone applies.
	Timeout time.Duration `json:"timeout"`

	// TraceID correlates the request with its workflow run.
	TraceID string `json:"trace_id"`

	// Context carries opaque request metadata used for review priority
	// and template tagging (document type, urgency and the like).
	Context map[string]any `json:"context,omitempty"`
}

// Response is the result of a tier invocation or a fallback substitute.
type Response struct {
	// Content is the model output or cached payload.
	Content string `json:"content"`

	// TierID is the tier that produced the content; empty for cache and
	// handoff sources.
	TierID string `json:"tier_id,omitempty"`

	// Source records which ladder rung satisfied the request.
	Source Source `json:"source"`

	// Confidence is the response confidence in [0,1]. Primary responses
	// report 1.0; degraded sources scale it down.
	Confidence float64 `json:"confidence"`

	// LatencyMs is the attempt latency for primary responses.
	LatencyMs int64 `json:"latency_ms,omitempty"`
}

// Invoker is the external model-invocation capability: prompt in, text
// out. Implementations must be safely callable concurrently for different
// tiers and must honor context cancellation at the deadline.
type Invoker interface {
	Invoke(ctx context.Context, req *Request) (*Response, error)
}

// NewInvokerHandler wraps an Invoker as the core pipeline Handler,
// applying the per-request timeout and stamping latency on success.
func NewInvokerHandler(invoker Invoker) Handler {
	return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
		reqCtx := ctx
		if req.Timeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, req.Timeout)
			defer cancel()
		}

		start := time.Now()
		resp, err := invoker.Invoke(reqCtx, req)
		if err != nil {
			return nil, err
		}

		resp.TierID = req.TierID
		resp.Source = SourcePrimary
		if resp.Confidence == 0 {
			resp.Confidence = 1.0
		}
		resp.LatencyMs = time.Since(start).Milliseconds()
		return resp, nil
	})
}

// Fingerprint derives the cache key for a prompt: the first 16 hex
// characters of its SHA-256 digest.
func Fingerprint(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])[:16]
}
