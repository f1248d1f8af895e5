package circuitbreaker

import (
	"sync"

	"github.com/cascade-ai/cascade/internal/model/configuration"
)

// Registry holds one breaker per tier id, created lazily on first use so
// tier failure isolation never crosses tiers.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      configuration.CircuitBreakerConfig
}

// NewRegistry creates an empty breaker registry with shared thresholds.
func NewRegistry(cfg configuration.CircuitBreakerConfig) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
	}
}

// Get returns the breaker for a tier, creating it closed on first access.
func (r *Registry) Get(tierID string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[tierID]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[tierID]; ok {
		return b
	}
	b = New(tierID, r.cfg)
	r.breakers[tierID] = b
	return b
}

// States returns a snapshot of every known breaker's state, keyed by tier
// id. Used for health reporting.
func (r *Registry) States() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	states := make(map[string]State, len(r.breakers))
	for id, b := range r.breakers {
		states[id] = b.State()
	}
	return states
}
