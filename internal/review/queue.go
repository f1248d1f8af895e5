// Package review implements the human handoff queue at the bottom of the
// degradation ladder. Enqueueing always succeeds, which is what lets the
// fallback chain guarantee an outcome for every request: when everything
// else is down, the request parks here for manual resolution.
package review

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Priority levels for handoff requests. Higher is more urgent.
const (
	PriorityDefault  = 1
	PriorityContract = 3
	PriorityPremium  = 4
	PriorityUrgent   = 5
)

// Request is a parked unit of work awaiting human resolution.
type Request struct {
	// ID identifies the handoff; returned to the caller as a claim ticket.
	ID string `json:"id"`

	// RunID links back to the workflow run that escalated.
	RunID string `json:"run_id,omitempty"`

	// Prompt is the original request text.
	Prompt string `json:"prompt"`

	// Reasons lists why the request escalated (review triggers, exhausted
	// fallback levels).
	Reasons []string `json:"reasons"`

	// Snapshot carries the request context at escalation time.
	Snapshot map[string]any `json:"snapshot,omitempty"`

	// Priority orders the queue; see the Priority constants.
	Priority int `json:"priority"`

	CreatedAt time.Time `json:"created_at"`
}

// Queue accepts handoff requests for manual resolution. Implementations
// must not fail enqueue for capacity reasons; the handoff level is the
// ladder's last resort and has no level below it.
type Queue interface {
	// Enqueue parks a request and returns its assigned id.
	Enqueue(ctx context.Context, req *Request) (string, error)

	// Pending returns parked requests ordered by descending priority,
	// oldest first within a priority.
	Pending(ctx context.Context) ([]*Request, error)
}

// MemoryQueue is an in-process Queue for single-node deployments and
// tests. Safe for concurrent use.
type MemoryQueue struct {
	mu       sync.Mutex
	requests []*Request
	logger   *slog.Logger
}

// NewMemoryQueue creates an empty in-process handoff queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{logger: slog.Default().With("component", "review")}
}

// Enqueue parks a request, assigning an id and timestamp when absent.
func (q *MemoryQueue) Enqueue(_ context.Context, req *Request) (string, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	if req.Priority == 0 {
		req.Priority = PriorityDefault
	}

	q.mu.Lock()
	q.requests = append(q.requests, req)
	depth := len(q.requests)
	q.mu.Unlock()

	q.logger.Info("request parked for human review",
		"handoff_id", req.ID,
		"priority", req.Priority,
		"queue_depth", depth)
	return req.ID, nil
}

// Pending returns a snapshot of parked requests, highest priority first,
// oldest first within equal priority.
func (q *MemoryQueue) Pending(_ context.Context) ([]*Request, error) {
	q.mu.Lock()
	snapshot := make([]*Request, len(q.requests))
	copy(snapshot, q.requests)
	q.mu.Unlock()

	sort.SliceStable(snapshot, func(i, j int) bool {
		if snapshot[i].Priority != snapshot[j].Priority {
			return snapshot[i].Priority > snapshot[j].Priority
		}
		return snapshot[i].CreatedAt.Before(snapshot[j].CreatedAt)
	})
	return snapshot, nil
}

// Len returns the current queue depth.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

// PriorityFor derives a handoff priority from request context. Contract
// documents, premium users, and urgent flags raise it; the highest
// applicable rule wins.
func PriorityFor(context map[string]any) int {
	priority := PriorityDefault

	if docType, ok := context["document_type"].(string); ok && docType == "contract" {
		priority = max(priority, PriorityContract)
	}
	if tier, ok := context["user_tier"].(string); ok && tier == "premium" {
		priority = max(priority, PriorityPremium)
	}
	if urgent, ok := context["urgent"].(bool); ok && urgent {
		priority = max(priority, PriorityUrgent)
	}
	return priority
}
