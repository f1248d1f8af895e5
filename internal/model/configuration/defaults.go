package configuration

import "time"

// Retry defaults. Each tier may override its own policy; these apply to
// DefaultConfig's tiers.
const (
	// DefaultMaxAttempts allows the initial attempt plus two retries.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is the first backoff delay.
	DefaultBaseDelay = 200 * time.Millisecond

	// DefaultMaxDelay clamps exponential backoff growth.
	DefaultMaxDelay = 5 * time.Second

	// DefaultMultiplier doubles the delay each attempt.
	DefaultMultiplier = 2.0

	// DefaultJitter spreads each delay by ±25% to avoid thundering herds.
	DefaultJitter = 0.25
)

// Circuit breaker defaults.
const (
	// DefaultFailureThreshold opens the breaker after this many
	// consecutive failures.
	DefaultFailureThreshold = 5

	// DefaultSuccessThreshold closes a half-open breaker after this many
	// consecutive probe successes.
	DefaultSuccessThreshold = 2

	// DefaultOpenTimeout is how long an open breaker rejects before
	// admitting a half-open probe.
	DefaultOpenTimeout = 30 * time.Second
)

// Cache defaults.
const (
	// DefaultCacheTTL is the entry lifetime.
	DefaultCacheTTL = time.Hour

	// DefaultCacheCapacity bounds live entries before LRU eviction.
	DefaultCacheCapacity = 1000

	// DefaultSimilarityThreshold is the minimum Jaccard overlap for a
	// semantic cache hit.
	DefaultSimilarityThreshold = 0.6
)

// Consensus defaults.
const (
	// DefaultQuorum is the minimum votes for any automatic decision.
	DefaultQuorum = 2

	// DefaultVoteTimeout bounds parallel vote collection.
	DefaultVoteTimeout = 30 * time.Second
)

// Workflow defaults.
const (
	// DefaultRunTimeout bounds a whole workflow run.
	DefaultRunTimeout = 2 * time.Minute

	// DefaultMaxSteps guards against unbounded graph cycles.
	DefaultMaxSteps = 50

	// DefaultNodeRetries bounds re-entry into a node via back-edges.
	DefaultNodeRetries = 2
)

// Rate limit defaults.
const (
	// DefaultTokensPerSecond is the per-tier sustained admission rate.
	DefaultTokensPerSecond = 10.0

	// DefaultBurstSize is the per-tier burst allowance.
	DefaultBurstSize = 20
)

// DefaultRetryPolicy returns the standard retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   Duration(DefaultBaseDelay),
		MaxDelay:    Duration(DefaultMaxDelay),
		Multiplier:  DefaultMultiplier,
		Jitter:      DefaultJitter,
	}
}

// DefaultConfig returns a complete, valid configuration with a three-tier
// ladder. Production deployments load their own file and override redis
// connection details from the environment.
func DefaultConfig() *Config {
	return &Config{
		Tiers: []TierConfig{
			{ID: "tier-reasoning", Class: "reasoning", Retry: DefaultRetryPolicy()},
			{ID: "tier-standard", Class: "standard", Retry: DefaultRetryPolicy()},
			{ID: "tier-fast", Class: "fast", Retry: DefaultRetryPolicy()},
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: DefaultFailureThreshold,
			SuccessThreshold: DefaultSuccessThreshold,
			OpenTimeout:      Duration(DefaultOpenTimeout),
		},
		RateLimit: RateLimitConfig{
			Enabled:         true,
			TokensPerSecond: DefaultTokensPerSecond,
			BurstSize:       DefaultBurstSize,
		},
		Cache: CacheConfig{
			Enabled:             true,
			TTL:                 Duration(DefaultCacheTTL),
			Capacity:            DefaultCacheCapacity,
			SimilarityThreshold: DefaultSimilarityThreshold,
			RedisAddr:           "localhost:6379",
		},
		Consensus: ConsensusConfig{
			Tiers:       []string{"tier-reasoning", "tier-standard", "tier-fast"},
			Quorum:      DefaultQuorum,
			VoteTimeout: Duration(DefaultVoteTimeout),
		},
		Workflow: WorkflowConfig{
			RunTimeout:         Duration(DefaultRunTimeout),
			MaxSteps:           DefaultMaxSteps,
			DefaultNodeRetries: DefaultNodeRetries,
		},
	}
}
