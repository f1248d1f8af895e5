// Package consensus implements multi-tier voting for critical decisions.
// The configured vote tiers are invoked in parallel on cloned run states;
// received votes aggregate by plurality: unanimity decides with high
// confidence, a strict majority decides with medium confidence and a
// split-decision note, anything weaker routes to human review.
package consensus

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cascade-ai/cascade/internal/domain"
	"github.com/cascade-ai/cascade/internal/model/configuration"
	"github.com/cascade-ai/cascade/internal/model/transport"
)

// Review trigger reason codes recorded on the run state.
const (
	TriggerBelowQuorum   = "consensus_below_quorum"
	TriggerTie           = "consensus_tie"
	TriggerSplitDecision = "consensus_split_decision"
)

// TierExecutor invokes one pinned tier through its full middleware
// pipeline. The fallback chain implements it; votes never fall back, a
// failed tier simply contributes no vote.
type TierExecutor interface {
	ExecuteTier(ctx context.Context, state *domain.WorkflowState, req *transport.Request, tierID string) (*transport.Response, error)
}

// Engine collects and aggregates votes from a fixed tier set.
type Engine struct {
	executor TierExecutor
	tiers    []string
	quorum   int
	timeout  configuration.Duration

	stats  stats
	logger *slog.Logger
}

// stats tracks consensus round outcomes.
type stats struct {
	rounds     atomic.Int64
	unanimous  atomic.Int64
	majority   atomic.Int64
	noDecision atomic.Int64
}

// StatsSnapshot is a point-in-time copy of the round outcome counters.
type StatsSnapshot struct {
	Rounds     int64 `json:"rounds"`
	Unanimous  int64 `json:"unanimous"`
	Majority   int64 `json:"majority"`
	NoDecision int64 `json:"no_decision"`
}

// Stats returns a snapshot of the round outcome counters.
func (e *Engine) Stats() StatsSnapshot {
	return StatsSnapshot{
		Rounds:     e.stats.rounds.Load(),
		Unanimous:  e.stats.unanimous.Load(),
		Majority:   e.stats.majority.Load(),
		NoDecision: e.stats.noDecision.Load(),
	}
}

// NewEngine creates a consensus engine from the consensus configuration.
func NewEngine(executor TierExecutor, cfg configuration.ConsensusConfig) *Engine {
	return &Engine{
		executor: executor,
		tiers:    cfg.Tiers,
		quorum:   cfg.Quorum,
		timeout:  cfg.VoteTimeout,
		logger:   slog.Default().With("component", "consensus"),
	}
}

// Decide runs one consensus round for the request. Every configured tier
// votes in parallel on an independent clone of the run state; the clones
// are merged back deterministically in configured tier order before
// aggregation. Decide never returns an error for failed votes: weak or
// absent agreement surfaces as NeedsReview on the decision.
func (e *Engine) Decide(ctx context.Context, state *domain.WorkflowState, req *transport.Request) *domain.ConsensusDecision {
	voteCtx, cancel := context.WithTimeout(ctx, e.timeout.Std())
	defer cancel()

	branches := make([]*domain.WorkflowState, len(e.tiers))
	votes := make([]*domain.Vote, len(e.tiers))

	var wg sync.WaitGroup
	for i, tierID := range e.tiers {
		branch := cloneState(state)
		branches[i] = branch

		wg.Add(1)
		go func(i int, tierID string, branch *domain.WorkflowState) {
			defer wg.Done()

			voteReq := *req
			resp, err := e.executor.ExecuteTier(voteCtx, branch, &voteReq, tierID)
			if err != nil {
				e.logger.Warn("tier contributed no vote", "tier", tierID, "error", err)
				votes[i] = &domain.Vote{TierID: tierID, Err: err}
				return
			}
			votes[i] = &domain.Vote{
				TierID:     tierID,
				Decision:   normalizeDecision(resp.Content),
				Confidence: resp.Confidence,
			}
		}(i, tierID, branch)
	}
	wg.Wait()

	if state != nil {
		domain.MergeBranches(state, branches)
	}

	decision := e.aggregate(votes)
	e.stats.rounds.Add(1)
	switch {
	case decision.NeedsReview:
		e.stats.noDecision.Add(1)
	case decision.Confidence == domain.ConfidenceHigh:
		e.stats.unanimous.Add(1)
	default:
		e.stats.majority.Add(1)
	}

	if state != nil {
		switch {
		case decision.NeedsReview && len(received(votes)) < e.quorum:
			state.TriggerReview(TriggerBelowQuorum)
		case decision.NeedsReview:
			state.TriggerReview(TriggerTie)
		case decision.Confidence == domain.ConfidenceMedium:
			state.TriggerReview(TriggerSplitDecision)
		}
	}

	e.logger.Info("consensus round complete",
		"decision", decision.Decision,
		"confidence", string(decision.Confidence),
		"votes", len(decision.Votes),
		"needs_review", decision.NeedsReview)
	return decision
}

// aggregate folds received votes into a decision per the agreement rules.
func (e *Engine) aggregate(votes []*domain.Vote) *domain.ConsensusDecision {
	got := received(votes)
	decision := &domain.ConsensusDecision{Votes: got, Confidence: domain.ConfidenceNone}

	if len(got) < e.quorum {
		decision.NeedsReview = true
		return decision
	}

	counts := make(map[string]int, len(got))
	for _, vote := range got {
		counts[vote.Decision]++
	}

	var winner string
	winnerCount, runnerUp := 0, 0
	for value, count := range counts {
		switch {
		case count > winnerCount:
			winner, winnerCount, runnerUp = value, count, winnerCount
		case count > runnerUp:
			runnerUp = count
		}
	}

	switch {
	case winnerCount == len(got):
		decision.Decision = winner
		decision.Confidence = domain.ConfidenceHigh
	case winnerCount > len(got)/2 && winnerCount > runnerUp:
		decision.Decision = winner
		decision.Confidence = domain.ConfidenceMedium
	default:
		// Tie or mere plurality: no automatic decision.
		decision.NeedsReview = true
	}
	return decision
}

// received filters out failed votes, preserving configured tier order.
func received(votes []*domain.Vote) []domain.Vote {
	got := make([]domain.Vote, 0, len(votes))
	for _, vote := range votes {
		if vote != nil && vote.Err == nil {
			got = append(got, *vote)
		}
	}
	return got
}

// normalizeDecision canonicalizes a voted value so superficial formatting
// differences between tiers do not split the vote.
func normalizeDecision(content string) string {
	return strings.ToLower(strings.TrimSpace(content))
}

// cloneState clones the run state, tolerating a nil state for callers
// voting outside a workflow run.
func cloneState(state *domain.WorkflowState) *domain.WorkflowState {
	if state == nil {
		return nil
	}
	return state.Clone()
}
