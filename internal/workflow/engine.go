package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cascade-ai/cascade/internal/domain"
	"github.com/cascade-ai/cascade/internal/model/configuration"
	"github.com/cascade-ai/cascade/internal/review"
)

// Review trigger reason codes recorded by the engine.
const (
	TriggerRetryExhausted   = "retry_budget_exhausted"
	TriggerRunDeadline      = "run_deadline_exceeded"
	TriggerNodeFailed       = "node_failed"
	TriggerStepLimitReached = "step_limit_reached"
)

// Engine executes workflow graphs. One engine serves many concurrent runs;
// all per-run state lives in the WorkflowState.
type Engine struct {
	graph  *Graph
	cfg    configuration.WorkflowConfig
	queue  review.Queue
	logger *slog.Logger
}

// NewEngine creates an engine for a validated graph. The review queue
// absorbs runs that exceed the run deadline.
func NewEngine(graph *Graph, cfg configuration.WorkflowConfig, queue review.Queue) (*Engine, error) {
	if err := graph.Validate(); err != nil {
		return nil, err
	}
	if queue == nil {
		return nil, fmt.Errorf("workflow: review queue is required")
	}
	return &Engine{
		graph:  graph,
		cfg:    cfg,
		queue:  queue,
		logger: slog.Default().With("component", "workflow"),
	}, nil
}

// Run executes the graph from its entry node until a terminal node, the
// step limit, or the run deadline. Run never returns a bare failure for
// operational problems: exhausted retries reroute to the escalation node
// and a blown deadline parks the run for human review. The returned error
// is reserved for graph defects (routes to unknown nodes).
func (e *Engine) Run(ctx context.Context, state *domain.WorkflowState) (*domain.FinalResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.cfg.RunTimeout.Std())
	defer cancel()

	logger := e.logger.With("run_id", state.RunID)
	logger.Info("workflow run started", "entry", e.graph.entry)

	var trace []domain.TraceStep
	visited := make(map[string]bool)
	current := e.graph.entry

	for steps := 0; ; steps++ {
		if runCtx.Err() != nil {
			return e.parkRun(ctx, state, trace, TriggerRunDeadline, logger)
		}
		if steps >= e.cfg.MaxSteps {
			return e.parkRun(ctx, state, trace, TriggerStepLimitReached, logger)
		}

		node, ok := e.graph.Node(current)
		if !ok {
			return nil, fmt.Errorf("workflow: route to unknown node %q", current)
		}

		step, err := e.executeNode(runCtx, node, state)
		trace = append(trace, step)
		if err != nil {
			state.TriggerReview(fmt.Sprintf("%s:%s", TriggerNodeFailed, node.ID))
			logger.Warn("node failed, escalating", "node", node.ID, "error", err)
			if current == e.graph.escalation {
				// The escalation node itself failed; park the run rather
				// than loop into it again.
				return e.parkRun(ctx, state, trace, TriggerNodeFailed, logger)
			}
			current = e.graph.escalation
			continue
		}
		visited[node.ID] = true

		if node.Next == nil {
			return e.finish(state, trace, logger), nil
		}
		next := node.Next(state)
		if next == Terminal {
			return e.finish(state, trace, logger), nil
		}

		current = e.admit(node, next, state, visited, logger)
	}
}

// admit applies the back-edge retry budget: routing to an already visited
// node consumes one retry of the target, and an exhausted budget reroutes
// to the escalation node. First visits pass through untouched, which keeps
// forward joins (diamond shapes) free of retry accounting.
func (e *Engine) admit(from *Node, next string, state *domain.WorkflowState, visited map[string]bool, logger *slog.Logger) string {
	if !visited[next] {
		return next
	}

	target, ok := e.graph.Node(next)
	if !ok {
		// Unknown target surfaces on the next loop iteration.
		return next
	}

	budget := target.MaxRetries
	if budget < 0 {
		budget = e.cfg.DefaultNodeRetries
	}

	if state.RetryCount(next) >= budget {
		state.TriggerReview(TriggerRetryExhausted)
		logger.Warn("retry budget exhausted, escalating",
			"from", from.ID,
			"node", next,
			"retries", state.RetryCount(next),
			"budget", budget)
		return e.graph.escalation
	}

	retries := state.BumpRetry(next)
	logger.Debug("back-edge admitted", "from", from.ID, "node", next, "retry", retries)
	return next
}

// executeNode runs one node, including its parallel branches, and records
// a trace step.
func (e *Engine) executeNode(ctx context.Context, node *Node, state *domain.WorkflowState) (domain.TraceStep, error) {
	start := time.Now()
	step := domain.TraceStep{
		Node:    node.ID,
		Attempt: state.RetryCount(node.ID) + 1,
	}

	var err error
	if node.Run != nil {
		err = node.Run(ctx, state)
	}
	if err == nil && len(node.Branches) > 0 {
		err = e.runBranches(ctx, node, state)
	}

	step.Duration = time.Since(start)
	state.AddProcessingTime(step.Duration)
	if err != nil {
		step.Err = err.Error()
	}
	return step, err
}

// runBranches fans the state out to the node's branches on independent
// clones, executes them in parallel, and merges the clones back in
// declared branch order so the outcome is independent of scheduling.
func (e *Engine) runBranches(ctx context.Context, node *Node, state *domain.WorkflowState) error {
	branches := make([]*domain.WorkflowState, len(node.Branches))
	errs := make([]error, len(node.Branches))

	var wg sync.WaitGroup
	for i, branchID := range node.Branches {
		branchNode, ok := e.graph.Node(branchID)
		if !ok {
			return fmt.Errorf("workflow: branch to unknown node %q", branchID)
		}

		clone := state.Clone()
		branches[i] = clone

		wg.Add(1)
		go func(i int, branchNode *Node, clone *domain.WorkflowState) {
			defer wg.Done()
			if branchNode.Run != nil {
				errs[i] = branchNode.Run(ctx, clone)
			}
		}(i, branchNode, clone)
	}
	wg.Wait()

	domain.MergeBranches(state, branches)

	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("branch %s: %w", node.Branches[i], err)
		}
	}
	return nil
}

// finish builds the final result. A run with any review trigger ends as
// pending review even when every node succeeded.
func (e *Engine) finish(state *domain.WorkflowState, trace []domain.TraceStep, logger *slog.Logger) *domain.FinalResult {
	status := domain.StatusCompleted
	if state.ReviewRequired() {
		status = domain.StatusPendingReview
	}

	logger.Info("workflow run finished",
		"status", string(status),
		"steps", len(trace),
		"service_level", state.ServiceLevelReached.String(),
		"processing_time", state.ProcessingTime)

	return &domain.FinalResult{
		RunID:               state.RunID,
		Status:              status,
		ServiceLevelReached: state.ServiceLevelReached,
		ModelsUsed:          state.ModelsUsed,
		ReviewTriggers:      state.ReviewTriggers,
		Trace:               trace,
		ProcessingTime:      state.ProcessingTime,
	}
}

// parkRun hands an aborted run to human review and returns it as pending.
// Enqueueing uses the parent context: the run context is typically the
// reason we are here.
func (e *Engine) parkRun(ctx context.Context, state *domain.WorkflowState, trace []domain.TraceStep, reason string, logger *slog.Logger) (*domain.FinalResult, error) {
	state.TriggerReview(reason)

	prompt, _ := state.Payload["prompt"].(string)
	if _, err := e.queue.Enqueue(ctx, &review.Request{
		RunID:    state.RunID,
		Prompt:   prompt,
		Reasons:  state.ReviewTriggers,
		Snapshot: state.Payload,
		Priority: review.PriorityFor(state.Payload),
	}); err != nil {
		logger.Error("failed to park aborted run", "error", err)
	}

	logger.Warn("workflow run parked for review", "reason", reason, "steps", len(trace))

	return &domain.FinalResult{
		RunID:               state.RunID,
		Status:              domain.StatusPendingReview,
		ServiceLevelReached: state.ServiceLevelReached,
		ModelsUsed:          state.ModelsUsed,
		ReviewTriggers:      state.ReviewTriggers,
		Trace:               trace,
		ProcessingTime:      state.ProcessingTime,
	}, nil
}
