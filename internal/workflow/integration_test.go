package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascade-ai/cascade/internal/domain"
	"github.com/cascade-ai/cascade/internal/model/cache"
	"github.com/cascade-ai/cascade/internal/model/configuration"
	llmerrors "github.com/cascade-ai/cascade/internal/model/errors"
	"github.com/cascade-ai/cascade/internal/model/fallback"
	"github.com/cascade-ai/cascade/internal/model/transport"
	"github.com/cascade-ai/cascade/internal/review"
)

// downInvoker simulates a full provider outage: every tier fails.
type downInvoker struct{}

func (downInvoker) Invoke(_ context.Context, req *transport.Request) (*transport.Response, error) {
	return nil, &llmerrors.TransientError{TierID: req.TierID, Type: llmerrors.ErrorTypeProvider, Message: "outage"}
}

func outageChainConfig() *configuration.Config {
	cfg := configuration.DefaultConfig()
	for i := range cfg.Tiers {
		cfg.Tiers[i].Retry = configuration.RetryPolicy{
			MaxAttempts: 2,
			BaseDelay:   configuration.Duration(time.Millisecond),
			MaxDelay:    configuration.Duration(2 * time.Millisecond),
			Multiplier:  2.0,
			Jitter:      0,
		}
	}
	cfg.RateLimit.Enabled = false
	cfg.Cache.Enabled = false
	return cfg
}

// answerGraph wires a fallback chain into a single workflow node, the way
// a production graph delegates model invocation to the degradation ladder.
func answerGraph(chain *fallback.Chain) *Graph {
	graph := NewGraph("answer", "escalate")
	graph.MustAddNode(&Node{
		ID: "answer",
		Run: func(ctx context.Context, state *domain.WorkflowState) error {
			prompt, _ := state.Payload["prompt"].(string)
			result, err := chain.Execute(ctx, state, &transport.Request{Prompt: prompt, TraceID: state.RunID})
			if err != nil {
				return err
			}
			state.Payload["answer"] = result.Response.Content
			state.Payload["pending"] = result.Pending
			return nil
		},
	})
	graph.MustAddNode(escalationNode())
	return graph
}

func TestRunServesCachedAnswerDuringOutage(t *testing.T) {
	cfg := outageChainConfig()
	cfg.Cache = configuration.CacheConfig{
		Enabled:             true,
		TTL:                 configuration.Duration(time.Hour),
		Capacity:            10,
		SimilarityThreshold: 0.6,
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	responseCache := cache.New(client, cfg.Cache)

	prompt := "summarize the incident timeline"
	require.NoError(t, responseCache.Put(context.Background(), prompt, transport.Fingerprint(prompt),
		&transport.Response{Content: "cached timeline", TierID: "tier-standard", Source: transport.SourcePrimary, Confidence: 1.0}))

	registry, err := configuration.NewRegistry(cfg.Tiers)
	require.NoError(t, err)
	chainQueue := review.NewMemoryQueue()
	chain, err := fallback.NewChain(cfg, registry, downInvoker{}, responseCache, chainQueue)
	require.NoError(t, err)

	engine, engineQueue := newEngine(t, answerGraph(chain), testWorkflowConfig())
	state := domain.NewWorkflowState(map[string]any{"prompt": prompt})

	result, err := engine.Run(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, result.Status)
	assert.Equal(t, domain.LevelCacheOnly, result.ServiceLevelReached)
	assert.Empty(t, result.ReviewTriggers)
	assert.Empty(t, result.ModelsUsed, "no tier produced the answer")
	assert.Equal(t, "cached timeline", state.Payload["answer"])
	assert.Equal(t, false, state.Payload["pending"])
	assert.Zero(t, chainQueue.Len())
	assert.Zero(t, engineQueue.Len())
}

func TestRunHandsOffDuringOutageWithoutCache(t *testing.T) {
	cfg := outageChainConfig()
	registry, err := configuration.NewRegistry(cfg.Tiers)
	require.NoError(t, err)
	chainQueue := review.NewMemoryQueue()
	chain, err := fallback.NewChain(cfg, registry, downInvoker{}, nil, chainQueue)
	require.NoError(t, err)

	engine, _ := newEngine(t, answerGraph(chain), testWorkflowConfig())
	state := domain.NewWorkflowState(map[string]any{"prompt": "review the anomalous ledger discrepancy"})

	result, err := engine.Run(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPendingReview, result.Status)
	assert.Equal(t, domain.LevelHumanHandoff, result.ServiceLevelReached)
	assert.Contains(t, result.ReviewTriggers, "human_handoff")
	assert.Equal(t, true, state.Payload["pending"])

	pending, err := chainQueue.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, state.RunID, pending[0].RunID)
}
