package configuration

import (
	"fmt"
	"sort"

	"github.com/cascade-ai/cascade/internal/domain"
)

// Registry provides capability-ordered access to the configured tiers.
// It is immutable after construction and safe for concurrent reads.
type Registry struct {
	byID    map[string]TierConfig
	ordered []TierConfig // capability rank descending, id ascending on ties
}

// NewRegistry builds a registry from the configured tiers. Tier ids must
// be unique and every capability class valid; Config.Validate enforces
// both, so construction from a validated config cannot fail.
func NewRegistry(tiers []TierConfig) (*Registry, error) {
	byID := make(map[string]TierConfig, len(tiers))
	ordered := make([]TierConfig, 0, len(tiers))
	for _, tier := range tiers {
		if !tier.Class.Valid() {
			return nil, fmt.Errorf("tier %s: invalid capability class %q", tier.ID, tier.Class)
		}
		if _, dup := byID[tier.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTier, tier.ID)
		}
		byID[tier.ID] = tier
		ordered = append(ordered, tier)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := ordered[i].Class.Rank(), ordered[j].Class.Rank()
		if ri != rj {
			return ri > rj
		}
		return ordered[i].ID < ordered[j].ID
	})

	return &Registry{byID: byID, ordered: ordered}, nil
}

// ByID returns the tier with the given id.
func (r *Registry) ByID(id string) (TierConfig, bool) {
	tier, ok := r.byID[id]
	return tier, ok
}

// All returns every tier ordered by descending capability. The returned
// slice is shared; callers must not mutate it.
func (r *Registry) All() []TierConfig {
	return r.ordered
}

// Len returns the number of registered tiers.
func (r *Registry) Len() int { return len(r.ordered) }

// Fastest returns the lowest-capability tier, used by the minimal service
// level. Returns false when the registry is empty.
func (r *Registry) Fastest() (TierConfig, bool) {
	if len(r.ordered) == 0 {
		return TierConfig{}, false
	}
	return r.ordered[len(r.ordered)-1], true
}

// EligibleAt returns the tiers a fallback level may invoke, ordered by
// descending capability. Full service admits every tier; degraded excludes
// the reasoning class; minimal admits only the single lowest-capability
// tier. Cache-only and human-handoff levels invoke no tier.
func (r *Registry) EligibleAt(level domain.ServiceLevel) []TierConfig {
	switch level {
	case domain.LevelFull:
		return r.ordered
	case domain.LevelDegraded:
		eligible := make([]TierConfig, 0, len(r.ordered))
		for _, tier := range r.ordered {
			if tier.Class != domain.CapabilityReasoning {
				eligible = append(eligible, tier)
			}
		}
		return eligible
	case domain.LevelMinimal:
		if fastest, ok := r.Fastest(); ok {
			return []TierConfig{fastest}
		}
		return nil
	default:
		return nil
	}
}
