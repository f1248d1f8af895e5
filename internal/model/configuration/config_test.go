package configuration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascade-ai/cascade/internal/domain"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "no tiers",
			mutate: func(c *Config) { c.Tiers = nil },
		},
		{
			name: "duplicate tier id",
			mutate: func(c *Config) {
				c.Tiers = append(c.Tiers, c.Tiers[0])
			},
		},
		{
			name: "unknown consensus tier",
			mutate: func(c *Config) {
				c.Consensus.Tiers = []string{"tier-ghost"}
			},
		},
		{
			name: "invalid capability class",
			mutate: func(c *Config) {
				c.Tiers[0].Class = "quantum"
			},
		},
		{
			name: "zero retry attempts",
			mutate: func(c *Config) {
				c.Tiers[0].Retry.MaxAttempts = 0
			},
		},
		{
			name: "jitter at or above one",
			mutate: func(c *Config) {
				c.Tiers[0].Retry.Jitter = 1.0
			},
		},
		{
			name: "multiplier below one",
			mutate: func(c *Config) {
				c.Tiers[0].Retry.Multiplier = 0.5
			},
		},
		{
			name: "zero breaker failure threshold",
			mutate: func(c *Config) {
				c.CircuitBreaker.FailureThreshold = 0
			},
		},
		{
			name: "similarity threshold above one",
			mutate: func(c *Config) {
				c.Cache.SimilarityThreshold = 1.5
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRegistryOrdering(t *testing.T) {
	reg, err := NewRegistry([]TierConfig{
		{ID: "b-fast", Class: domain.CapabilityFast, Retry: DefaultRetryPolicy()},
		{ID: "a-reasoning", Class: domain.CapabilityReasoning, Retry: DefaultRetryPolicy()},
		{ID: "a-standard", Class: domain.CapabilityStandard, Retry: DefaultRetryPolicy()},
		{ID: "a-fast", Class: domain.CapabilityFast, Retry: DefaultRetryPolicy()},
	})
	require.NoError(t, err)

	var ids []string
	for _, tier := range reg.All() {
		ids = append(ids, tier.ID)
	}
	assert.Equal(t, []string{"a-reasoning", "a-standard", "a-fast", "b-fast"}, ids)

	fastest, ok := reg.Fastest()
	require.True(t, ok)
	assert.Equal(t, "b-fast", fastest.ID)
}

func TestRegistryEligibleAt(t *testing.T) {
	reg, err := NewRegistry(DefaultConfig().Tiers)
	require.NoError(t, err)

	full := reg.EligibleAt(domain.LevelFull)
	require.Len(t, full, 3)
	assert.Equal(t, "tier-reasoning", full[0].ID)

	degraded := reg.EligibleAt(domain.LevelDegraded)
	require.Len(t, degraded, 2)
	for _, tier := range degraded {
		assert.NotEqual(t, domain.CapabilityReasoning, tier.Class)
	}

	minimal := reg.EligibleAt(domain.LevelMinimal)
	require.Len(t, minimal, 1)
	assert.Equal(t, "tier-fast", minimal[0].ID)

	assert.Empty(t, reg.EligibleAt(domain.LevelCacheOnly))
	assert.Empty(t, reg.EligibleAt(domain.LevelHumanHandoff))
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry([]TierConfig{
		{ID: "t", Class: domain.CapabilityFast, Retry: DefaultRetryPolicy()},
		{ID: "t", Class: domain.CapabilityStandard, Retry: DefaultRetryPolicy()},
	})
	assert.ErrorIs(t, err, ErrDuplicateTier)
}

func TestLoadParsesDurationsAndOverrides(t *testing.T) {
	raw := []byte(`
tiers:
  - id: tier-premium
    class: reasoning
    retry:
      max_attempts: 4
      base_delay: 250ms
      max_delay: 10s
      multiplier: 2.0
      jitter: 0.1
consensus:
  tiers: [tier-premium]
  quorum: 1
  vote_timeout: 5s
circuit_breaker:
  failure_threshold: 3
  success_threshold: 1
  open_timeout: 15s
`)

	t.Setenv("CASCADE_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("CASCADE_REDIS_PASSWORD", "secret")

	cfg, err := Load(raw)
	require.NoError(t, err)

	require.Len(t, cfg.Tiers, 1)
	assert.Equal(t, 4, cfg.Tiers[0].Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Tiers[0].Retry.BaseDelay.Std())
	assert.Equal(t, 10*time.Second, cfg.Tiers[0].Retry.MaxDelay.Std())
	assert.Equal(t, 15*time.Second, cfg.CircuitBreaker.OpenTimeout.Std())

	// File values untouched by the parse keep their defaults.
	assert.Equal(t, DefaultCacheCapacity, cfg.Cache.Capacity)

	// Environment overrides the connection settings.
	assert.Equal(t, "redis.internal:6380", cfg.Cache.RedisAddr)
	assert.Equal(t, "secret", cfg.Cache.RedisPassword)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	_, err := Load([]byte("tiers: [unclosed"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	raw := []byte(`
tiers:
  - id: t
    class: fast
    retry:
      max_attempts: 1
      base_delay: soon
      max_delay: 1s
      multiplier: 2.0
      jitter: 0.1
`)
	_, err := Load(raw)
	assert.Error(t, err)
}
