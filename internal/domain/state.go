package domain

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// WorkflowState carries everything a single workflow run accumulates while
// it moves through the node graph: the opaque domain payload, per-node
// retry counts, the ordered list of models used, the service level reached,
// human-review trigger reasons, and timing bookkeeping.
//
// A WorkflowState is exclusively owned by one in-flight run. It is mutated
// in place by whichever node currently executes and must never be aliased
// across concurrent runs. Parallel fan-out points operate on independent
// Clone() copies which are deterministically merged before the next node.
type WorkflowState struct {
	// RunID uniquely identifies the workflow run.
	RunID string `json:"run_id"`

	// Payload is the domain data the workflow operates on. The
	// orchestration core treats it as opaque; node operations own its
	// interpretation.
	Payload map[string]any `json:"payload"`

	// RetryCounts tracks, per node id, how many times the node has been
	// re-entered through a back-edge.
	RetryCounts map[string]int `json:"retry_counts"`

	// ModelsUsed records every tier that produced a response for this run,
	// in invocation order. Duplicates are kept: they show repeated use.
	ModelsUsed []string `json:"models_used"`

	// ServiceLevelReached is the deepest degradation level any fallback
	// pass reached during this run. Monotonic, see RecordServiceLevel.
	ServiceLevelReached ServiceLevel `json:"service_level_reached"`

	// ReviewTriggers is the set of reason codes that flagged this run for
	// human review. Insertion-ordered and duplicate-free.
	ReviewTriggers []string `json:"review_triggers"`

	// Notes collects free-form processing annotations for the trace.
	Notes []string `json:"notes,omitempty"`

	// ProcessingTime accumulates time spent in node operations.
	ProcessingTime time.Duration `json:"processing_time"`
}

// NewWorkflowState creates a run state around the given payload.
// A nil payload is replaced with an empty map so node operations can
// write without nil checks.
func NewWorkflowState(payload map[string]any) *WorkflowState {
	if payload == nil {
		payload = make(map[string]any)
	}
	return &WorkflowState{
		RunID:       uuid.NewString(),
		Payload:     payload,
		RetryCounts: make(map[string]int),
	}
}

// Clone returns an independent deep copy for parallel fan-out branches.
// The copy shares nothing mutable with the original.
func (s *WorkflowState) Clone() *WorkflowState {
	c := &WorkflowState{
		RunID:               s.RunID,
		Payload:             make(map[string]any, len(s.Payload)),
		RetryCounts:         make(map[string]int, len(s.RetryCounts)),
		ModelsUsed:          slices.Clone(s.ModelsUsed),
		ServiceLevelReached: s.ServiceLevelReached,
		ReviewTriggers:      slices.Clone(s.ReviewTriggers),
		Notes:               slices.Clone(s.Notes),
		ProcessingTime:      s.ProcessingTime,
	}
	maps.Copy(c.Payload, s.Payload)
	maps.Copy(c.RetryCounts, s.RetryCounts)
	return c
}

// RecordServiceLevel advances the reached service level. The level is
// monotonic for the lifetime of the run: attempts to lower it are ignored.
func (s *WorkflowState) RecordServiceLevel(l ServiceLevel) {
	if l > s.ServiceLevelReached {
		s.ServiceLevelReached = l
	}
}

// RecordModel appends a tier id to the ordered models-used sequence.
func (s *WorkflowState) RecordModel(tierID string) {
	s.ModelsUsed = append(s.ModelsUsed, tierID)
}

// TriggerReview adds a human-review reason code. Duplicate codes are
// dropped so the trigger set stays a set.
func (s *WorkflowState) TriggerReview(reason string) {
	if slices.Contains(s.ReviewTriggers, reason) {
		return
	}
	s.ReviewTriggers = append(s.ReviewTriggers, reason)
}

// ReviewRequired reports whether any review trigger has been recorded.
func (s *WorkflowState) ReviewRequired() bool { return len(s.ReviewTriggers) > 0 }

// BumpRetry increments and returns the retry count for a node id.
func (s *WorkflowState) BumpRetry(nodeID string) int {
	s.RetryCounts[nodeID]++
	return s.RetryCounts[nodeID]
}

// RetryCount returns the current retry count for a node id.
func (s *WorkflowState) RetryCount(nodeID string) int { return s.RetryCounts[nodeID] }

// AddNote appends a processing annotation.
func (s *WorkflowState) AddNote(note string) { s.Notes = append(s.Notes, note) }

// AddProcessingTime accumulates time spent executing node operations.
func (s *WorkflowState) AddProcessingTime(d time.Duration) { s.ProcessingTime += d }

// MergeBranches folds fan-out branch copies back into the base state the
// branches were cloned from. The merge is deterministic and independent of
// branch completion order: branches are folded in slice order. Per branch,
// models and notes gained since the clone are concatenated, review triggers
// are unioned, the service level takes the maximum, retry counts take the
// per-node maximum, and payload keys written by a branch overwrite in
// branch order. Never merge states that were not cloned from base.
func MergeBranches(base *WorkflowState, branches []*WorkflowState) {
	baseModels := len(base.ModelsUsed)
	baseNotes := len(base.Notes)
	baseTime := base.ProcessingTime

	for _, branch := range branches {
		if branch == nil {
			continue
		}
		if len(branch.ModelsUsed) > baseModels {
			base.ModelsUsed = append(base.ModelsUsed, branch.ModelsUsed[baseModels:]...)
		}
		if len(branch.Notes) > baseNotes {
			base.Notes = append(base.Notes, branch.Notes[baseNotes:]...)
		}
		base.RecordServiceLevel(branch.ServiceLevelReached)
		for _, reason := range branch.ReviewTriggers {
			base.TriggerReview(reason)
		}
		for node, count := range branch.RetryCounts {
			if count > base.RetryCounts[node] {
				base.RetryCounts[node] = count
			}
		}
		for k, v := range branch.Payload {
			base.Payload[k] = v
		}
		if gained := branch.ProcessingTime - baseTime; gained > 0 {
			base.ProcessingTime += gained
		}
	}
}
