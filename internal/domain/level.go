package domain

// ServiceLevel is the degradation ladder position used to satisfy a
// request. Levels are ordinal: a request's level only increases during a
// single fallback pass, never decreases, and never skips backward.
type ServiceLevel int

const (
	// LevelFull uses all tiers with the highest-capability tier preferred.
	LevelFull ServiceLevel = iota + 1

	// LevelDegraded excludes the reasoning tier.
	LevelDegraded

	// LevelMinimal uses only the single fastest available tier.
	LevelMinimal

	// LevelCacheOnly serves from the response cache without invocation.
	LevelCacheOnly

	// LevelHumanHandoff enqueues the request for manual review. This level
	// always succeeds, so the fallback chain cannot fail outright.
	LevelHumanHandoff
)

// String returns the string representation of the service level.
func (l ServiceLevel) String() string {
	switch l {
	case LevelFull:
		return "full"
	case LevelDegraded:
		return "degraded"
	case LevelMinimal:
		return "minimal"
	case LevelCacheOnly:
		return "cache_only"
	case LevelHumanHandoff:
		return "human_handoff"
	default:
		return "unknown"
	}
}

// Valid reports whether the level is within the defined ladder.
func (l ServiceLevel) Valid() bool { return l >= LevelFull && l <= LevelHumanHandoff }

// Next returns the next level down the ladder. The terminal level
// returns itself; the ladder never advances past human handoff.
func (l ServiceLevel) Next() ServiceLevel {
	if l >= LevelHumanHandoff {
		return LevelHumanHandoff
	}
	return l + 1
}
