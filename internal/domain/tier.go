// Package domain defines the core value types shared across the
// orchestration system: model tier capabilities, service degradation
// levels, per-run workflow state, consensus votes, and final results.
//
// Domain types carry no I/O. They are either immutable after construction
// (capability classes, service levels) or exclusively owned by a single
// workflow run (WorkflowState), which keeps the orchestration core free of
// hidden shared mutable state.
package domain

import "fmt"

// CapabilityClass categorizes model tiers by inference capability.
// Classes form a total order used for capability-descending tier selection
// in the fallback chain: reasoning > standard > fast.
type CapabilityClass string

const (
	// CapabilityFast identifies low-latency, low-capability tiers.
	CapabilityFast CapabilityClass = "fast"

	// CapabilityStandard identifies general-purpose tiers.
	CapabilityStandard CapabilityClass = "standard"

	// CapabilityReasoning identifies the highest-capability tiers.
	CapabilityReasoning CapabilityClass = "reasoning"
)

// String returns the string representation of the capability class.
func (c CapabilityClass) String() string { return string(c) }

// Rank returns the capability ordinal, higher means more capable.
// Unknown classes rank below every known class.
func (c CapabilityClass) Rank() int {
	switch c {
	case CapabilityReasoning:
		return 3
	case CapabilityStandard:
		return 2
	case CapabilityFast:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the capability class is one of the known classes.
func (c CapabilityClass) Valid() bool { return c.Rank() > 0 }

// ParseCapabilityClass converts a string into a CapabilityClass.
func ParseCapabilityClass(s string) (CapabilityClass, error) {
	c := CapabilityClass(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown capability class %q", s)
	}
	return c, nil
}
