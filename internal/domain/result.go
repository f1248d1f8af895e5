package domain

import "time"

// RunStatus is the terminal status of a workflow run. There is no hard
// failure status: the worst outcome is a pending human review.
type RunStatus string

const (
	// StatusCompleted means the run finished with an automatic result.
	StatusCompleted RunStatus = "completed"

	// StatusPendingReview means the run was handed off to human review.
	StatusPendingReview RunStatus = "pending_review"
)

// TraceStep records one executed node for the run trace.
type TraceStep struct {
	// Node is the id of the executed node.
	Node string `json:"node"`

	// Attempt is 1 for the first execution and grows with back-edge
	// re-entries of the same node.
	Attempt int `json:"attempt"`

	// Duration is the wall time the node operation took.
	Duration time.Duration `json:"duration"`

	// Err holds the node operation error message, if any.
	Err string `json:"err,omitempty"`
}

// FinalResult is the outcome of a workflow run returned by the engine.
type FinalResult struct {
	RunID               string       `json:"run_id"`
	Status              RunStatus    `json:"status"`
	ServiceLevelReached ServiceLevel `json:"service_level_reached"`
	ModelsUsed          []string     `json:"models_used"`
	ReviewTriggers      []string     `json:"review_triggers,omitempty"`
	Trace               []TraceStep  `json:"trace"`
	ProcessingTime      time.Duration `json:"processing_time"`
}
