package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkflowState(t *testing.T) {
	s := NewWorkflowState(nil)
	assert.NotEmpty(t, s.RunID)
	assert.NotNil(t, s.Payload)
	assert.NotNil(t, s.RetryCounts)

	withPayload := NewWorkflowState(map[string]any{"prompt": "hello"})
	assert.Equal(t, "hello", withPayload.Payload["prompt"])
	assert.NotEqual(t, s.RunID, withPayload.RunID)
}

func TestRecordServiceLevelIsMonotonic(t *testing.T) {
	s := NewWorkflowState(nil)

	s.RecordServiceLevel(LevelDegraded)
	assert.Equal(t, LevelDegraded, s.ServiceLevelReached)

	// Attempts to move back up are ignored.
	s.RecordServiceLevel(LevelFull)
	assert.Equal(t, LevelDegraded, s.ServiceLevelReached)

	s.RecordServiceLevel(LevelHumanHandoff)
	assert.Equal(t, LevelHumanHandoff, s.ServiceLevelReached)
}

func TestTriggerReviewDeduplicates(t *testing.T) {
	s := NewWorkflowState(nil)
	assert.False(t, s.ReviewRequired())

	s.TriggerReview("low_confidence")
	s.TriggerReview("low_confidence")
	s.TriggerReview("split_decision")

	assert.True(t, s.ReviewRequired())
	assert.Equal(t, []string{"low_confidence", "split_decision"}, s.ReviewTriggers)
}

func TestCloneIsIndependent(t *testing.T) {
	s := NewWorkflowState(map[string]any{"prompt": "original"})
	s.RecordModel("tier-fast")
	s.BumpRetry("node-a")
	s.TriggerReview("check")
	s.AddNote("first")

	c := s.Clone()
	require.Equal(t, s.RunID, c.RunID)

	c.Payload["prompt"] = "changed"
	c.Payload["extra"] = 1
	c.RecordModel("tier-standard")
	c.BumpRetry("node-a")
	c.TriggerReview("other")
	c.AddNote("second")

	assert.Equal(t, "original", s.Payload["prompt"])
	assert.NotContains(t, s.Payload, "extra")
	assert.Equal(t, []string{"tier-fast"}, s.ModelsUsed)
	assert.Equal(t, 1, s.RetryCount("node-a"))
	assert.Equal(t, []string{"check"}, s.ReviewTriggers)
	assert.Equal(t, []string{"first"}, s.Notes)
}

func TestMergeBranches(t *testing.T) {
	base := NewWorkflowState(map[string]any{"prompt": "analyze"})
	base.RecordModel("tier-reasoning")
	base.AddNote("preflight")
	base.RecordServiceLevel(LevelFull)
	base.AddProcessingTime(10 * time.Millisecond)

	left := base.Clone()
	left.RecordModel("tier-standard")
	left.AddNote("left done")
	left.RecordServiceLevel(LevelDegraded)
	left.BumpRetry("shared")
	left.Payload["left"] = true
	left.Payload["winner"] = "left"
	left.AddProcessingTime(5 * time.Millisecond)

	right := base.Clone()
	right.RecordModel("tier-fast")
	right.AddNote("right done")
	right.TriggerReview("right_flagged")
	right.BumpRetry("shared")
	right.BumpRetry("shared")
	right.Payload["right"] = true
	right.Payload["winner"] = "right"
	right.AddProcessingTime(7 * time.Millisecond)

	MergeBranches(base, []*WorkflowState{left, right, nil})

	// Pre-branch entries are not duplicated; branch gains concatenate in
	// branch order.
	assert.Equal(t, []string{"tier-reasoning", "tier-standard", "tier-fast"}, base.ModelsUsed)
	assert.Equal(t, []string{"preflight", "left done", "right done"}, base.Notes)

	assert.Equal(t, LevelDegraded, base.ServiceLevelReached)
	assert.Equal(t, []string{"right_flagged"}, base.ReviewTriggers)
	assert.Equal(t, 2, base.RetryCount("shared"), "per-node maximum, not sum")

	assert.Equal(t, true, base.Payload["left"])
	assert.Equal(t, true, base.Payload["right"])
	assert.Equal(t, "right", base.Payload["winner"], "later branch wins conflicting keys")

	assert.Equal(t, 22*time.Millisecond, base.ProcessingTime, "base plus time gained per branch")
}

func TestServiceLevelNextSaturates(t *testing.T) {
	assert.Equal(t, LevelDegraded, LevelFull.Next())
	assert.Equal(t, LevelMinimal, LevelDegraded.Next())
	assert.Equal(t, LevelCacheOnly, LevelMinimal.Next())
	assert.Equal(t, LevelHumanHandoff, LevelCacheOnly.Next())
	assert.Equal(t, LevelHumanHandoff, LevelHumanHandoff.Next())
}

func TestCapabilityClassOrdering(t *testing.T) {
	assert.Greater(t, CapabilityReasoning.Rank(), CapabilityStandard.Rank())
	assert.Greater(t, CapabilityStandard.Rank(), CapabilityFast.Rank())

	assert.True(t, CapabilityFast.Valid())
	assert.False(t, CapabilityClass("quantum").Valid())

	parsed, err := ParseCapabilityClass("reasoning")
	require.NoError(t, err)
	assert.Equal(t, CapabilityReasoning, parsed)

	_, err = ParseCapabilityClass("quantum")
	assert.Error(t, err)
}
