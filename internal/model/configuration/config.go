// Package configuration holds the single configuration structure for the
// orchestration core: tier definitions with retry policies, circuit
// breaker thresholds, cache limits, consensus quorum settings, and
// workflow bounds. All fields are explicitly enumerated; the only defaults
// are the documented ones in defaults.go. Invalid configuration is
// rejected at startup by Validate, before any run begins.
package configuration

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/cascade-ai/cascade/internal/domain"
)

// validate is the package-level validator instance for struct validation.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Static configuration errors.
var (
	// ErrDuplicateTier indicates two tiers share an id.
	ErrDuplicateTier = errors.New("duplicate tier id")

	// ErrUnknownConsensusTier indicates the consensus tier list names a
	// tier absent from the registry.
	ErrUnknownConsensusTier = errors.New("consensus references unknown tier")
)

// Duration wraps time.Duration with YAML string parsing ("250ms", "30s").
type Duration time.Duration

// UnmarshalYAML parses either a Go duration string or integer nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration node: %w", err)
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML renders the duration as a Go duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// RetryPolicy controls retry behavior for one tier's failed invocations.
// Delays grow exponentially from BaseDelay by Multiplier per attempt,
// clamp at MaxDelay, and spread by the proportional Jitter fraction.
type RetryPolicy struct {
	MaxAttempts int      `json:"max_attempts" yaml:"max_attempts" validate:"min=1"`
	BaseDelay   Duration `json:"base_delay" yaml:"base_delay" validate:"min=1"`
	MaxDelay    Duration `json:"max_delay" yaml:"max_delay" validate:"min=0"`
	Multiplier  float64  `json:"multiplier" yaml:"multiplier" validate:"min=1"`
	Jitter      float64  `json:"jitter" yaml:"jitter" validate:"min=0,lt=1"`
}

// TierConfig describes one model tier: its capability class, retry policy,
// and optional breaker overrides. Immutable after registry load.
type TierConfig struct {
	ID    string                 `json:"id" yaml:"id" validate:"required"`
	Class domain.CapabilityClass `json:"class" yaml:"class" validate:"required,oneof=fast standard reasoning"`
	Retry RetryPolicy            `json:"retry" yaml:"retry" validate:"required"`
}

// CircuitBreakerConfig controls the per-tier failure gating state machine.
type CircuitBreakerConfig struct {
	// FailureThreshold is the consecutive failures required to open.
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold" validate:"min=1"`
	// SuccessThreshold is the half-open successes required to close.
	SuccessThreshold int `json:"success_threshold" yaml:"success_threshold" validate:"min=1"`
	// OpenTimeout is how long the breaker stays open before admitting a
	// half-open probe.
	OpenTimeout Duration `json:"open_timeout" yaml:"open_timeout" validate:"min=1"`
}

// RateLimitConfig controls local per-tier admission token buckets.
type RateLimitConfig struct {
	Enabled         bool    `json:"enabled" yaml:"enabled"`
	TokensPerSecond float64 `json:"tokens_per_second" yaml:"tokens_per_second" validate:"min=0"`
	BurstSize       int     `json:"burst_size" yaml:"burst_size" validate:"min=0"`
}

// CacheConfig controls the Redis-backed response cache.
type CacheConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// TTL is the lifetime of a cache entry.
	TTL Duration `json:"ttl" yaml:"ttl" validate:"min=0"`
	// Capacity bounds the number of live entries; least-recently-used
	// unexpired entries are evicted first.
	Capacity int `json:"capacity" yaml:"capacity" validate:"min=1"`
	// SimilarityThreshold is the minimum Jaccard score for a semantic
	// match in [0,1].
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold" validate:"min=0,max=1"`

	RedisAddr     string `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `json:"-" yaml:"-"` // sensitive, env-only
	RedisDB       int    `json:"redis_db" yaml:"redis_db"`
}

// ConsensusConfig controls multi-tier voting for critical decisions.
type ConsensusConfig struct {
	// Tiers is the fixed vote set; every entry must exist in Tiers above.
	Tiers []string `json:"tiers" yaml:"tiers" validate:"required,min=1"`
	// Quorum is the minimum received votes for any automatic decision.
	Quorum int `json:"quorum" yaml:"quorum" validate:"min=1"`
	// VoteTimeout bounds the parallel vote collection.
	VoteTimeout Duration `json:"vote_timeout" yaml:"vote_timeout" validate:"min=1"`
}

// WorkflowConfig bounds workflow engine execution.
type WorkflowConfig struct {
	// RunTimeout is the run-level deadline; on expiry in-flight
	// suspensions abort and the run escalates to human handoff.
	RunTimeout Duration `json:"run_timeout" yaml:"run_timeout" validate:"min=1"`
	// MaxSteps is a hard guard against graph cycles that evade the
	// per-node retry bounds.
	MaxSteps int `json:"max_steps" yaml:"max_steps" validate:"min=1"`
	// DefaultNodeRetries applies to nodes without an explicit bound.
	DefaultNodeRetries int `json:"default_node_retries" yaml:"default_node_retries" validate:"min=0"`
}

// Config is the complete configuration for the orchestration core.
type Config struct {
	Tiers          []TierConfig         `json:"tiers" yaml:"tiers" validate:"required,min=1,dive"`
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
	RateLimit      RateLimitConfig      `json:"rate_limit" yaml:"rate_limit"`
	Cache          CacheConfig          `json:"cache" yaml:"cache"`
	Consensus      ConsensusConfig      `json:"consensus" yaml:"consensus"`
	Workflow       WorkflowConfig       `json:"workflow" yaml:"workflow"`
}

// Validate rejects invalid configuration before any run begins. It checks
// struct constraints, tier id uniqueness, and that consensus tiers exist.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	seen := make(map[string]struct{}, len(c.Tiers))
	for _, tier := range c.Tiers {
		if _, dup := seen[tier.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateTier, tier.ID)
		}
		seen[tier.ID] = struct{}{}
	}

	for _, id := range c.Consensus.Tiers {
		if _, ok := seen[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownConsensusTier, id)
		}
	}

	return nil
}
