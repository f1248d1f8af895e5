// Package circuitbreaker gates tier invocations behind a per-tier failure
// state machine. Consecutive failures open the breaker; after the open
// timeout a single probe is admitted, and consecutive probe successes
// close it again. State transitions use atomic compare-and-swap so the
// breaker never serializes the request path.
package circuitbreaker

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cascade-ai/cascade/internal/model/configuration"
	llmerrors "github.com/cascade-ai/cascade/internal/model/errors"
)

// State represents the current state of a circuit breaker.
type State int32

const (
	// StateClosed allows requests through.
	StateClosed State = iota
	// StateOpen blocks all requests.
	StateOpen
	// StateHalfOpen allows a single probe request.
	StateHalfOpen
)

// String returns the string representation of the circuit state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker is the per-tier circuit breaking state machine. All state lives
// in atomics; methods are safe for concurrent use.
type Breaker struct {
	state           atomic.Int32
	failures        atomic.Int32
	successes       atomic.Int32
	lastFailureTime atomic.Int64
	probeInFlight   atomic.Int32

	tierID           string
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration

	stats  Stats
	logger *slog.Logger
}

// Stats tracks breaker activity counters for observability.
type Stats struct {
	Allowed          atomic.Int64
	Rejected         atomic.Int64
	StateTransitions atomic.Int64
	ProbeAttempts    atomic.Int64
}

// StatsSnapshot is a point-in-time copy of the breaker counters.
type StatsSnapshot struct {
	Allowed          int64 `json:"allowed"`
	Rejected         int64 `json:"rejected"`
	StateTransitions int64 `json:"state_transitions"`
	ProbeAttempts    int64 `json:"probe_attempts"`
}

// New creates a closed breaker for one tier.
func New(tierID string, cfg configuration.CircuitBreakerConfig) *Breaker {
	b := &Breaker{
		tierID:           tierID,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		openTimeout:      cfg.OpenTimeout.Std(),
		logger:           slog.Default().With("component", "circuitbreaker", "tier", tierID),
	}
	b.state.Store(int32(StateClosed))
	return b
}

// State returns the breaker's current state.
func (b *Breaker) State() State { return State(b.state.Load()) }

// Stats returns a snapshot of the breaker activity counters.
func (b *Breaker) Stats() StatsSnapshot {
	return StatsSnapshot{
		Allowed:          b.stats.Allowed.Load(),
		Rejected:         b.stats.Rejected.Load(),
		StateTransitions: b.stats.StateTransitions.Load(),
		ProbeAttempts:    b.stats.ProbeAttempts.Load(),
	}
}

// ResetAt returns the unix time at which an open breaker may admit a
// probe. Zero when the breaker has never failed.
func (b *Breaker) ResetAt() int64 {
	lastFailure := b.lastFailureTime.Load()
	if lastFailure == 0 {
		return 0
	}
	return time.Unix(0, lastFailure).Add(b.openTimeout).Unix()
}

// Allow decides whether a request may proceed. In the closed state every
// request passes. In the open state requests are rejected with an
// UnavailableError until the open timeout elapses, after which the breaker
// moves to half-open and admits exactly one in-flight probe. The returned
// cleanup function must be called when the admitted request completes; it
// releases the probe slot.
func (b *Breaker) Allow() (cleanup func(), err error) {
	for {
		switch State(b.state.Load()) {
		case StateClosed:
			b.stats.Allowed.Add(1)
			return func() {}, nil

		case StateOpen:
			lastFailure := time.Unix(0, b.lastFailureTime.Load())
			if time.Since(lastFailure) < b.openTimeout {
				b.stats.Rejected.Add(1)
				return nil, &llmerrors.UnavailableError{
					TierID:  b.tierID,
					State:   StateOpen.String(),
					ResetAt: b.ResetAt(),
				}
			}
			// Only the CAS winner transitions. A loser re-reads the state:
			// if a probe failed and reopened the breaker in the meantime,
			// the fresh failure time reinstates the full open wait instead
			// of admitting a second immediate probe.
			if b.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
				b.failures.Store(0)
				b.successes.Store(0)
				b.logTransition(StateOpen, StateHalfOpen)
				return b.admitProbe()
			}

		case StateHalfOpen:
			return b.admitProbe()

		default:
			b.stats.Rejected.Add(1)
			return nil, &llmerrors.UnavailableError{
				TierID: b.tierID,
				State:  "unknown",
			}
		}
	}
}

// admitProbe claims the single half-open probe slot, rejecting when a
// probe is already in flight.
func (b *Breaker) admitProbe() (func(), error) {
	if !b.probeInFlight.CompareAndSwap(0, 1) {
		b.stats.Rejected.Add(1)
		return nil, &llmerrors.UnavailableError{
			TierID:  b.tierID,
			State:   StateHalfOpen.String(),
			ResetAt: b.ResetAt(),
		}
	}

	b.stats.ProbeAttempts.Add(1)
	b.stats.Allowed.Add(1)
	cleanup := func() {
		// Saturate at 0; a concurrent state transition may have reset it.
		b.probeInFlight.CompareAndSwap(1, 0)
	}
	return cleanup, nil
}

// RecordSuccess records a successful request. Closed-state successes reset
// the failure count. Half-open successes count toward the success
// threshold and close the breaker when reached.
func (b *Breaker) RecordSuccess() {
	for {
		state := b.state.Load()
		switch State(state) {
		case StateClosed:
			b.failures.Store(0)
			return

		case StateHalfOpen:
			successes := b.successes.Add(1)
			if int(successes) >= b.successThreshold {
				if b.state.CompareAndSwap(state, int32(StateClosed)) {
					b.resetCounters()
					b.logTransition(StateHalfOpen, StateClosed)
					return
				}
				b.successes.Add(-1)
				continue
			}
			return

		case StateOpen:
			// A late success from a request admitted before the breaker
			// opened; it carries no state information.
			return
		}
	}
}

// RecordFailure records a failed request. Closed-state failures count
// toward the failure threshold and open the breaker when reached. A
// half-open probe failure reopens immediately.
func (b *Breaker) RecordFailure() {
	b.lastFailureTime.Store(time.Now().UnixNano())

	for {
		state := b.state.Load()
		switch State(state) {
		case StateClosed:
			failures := b.failures.Add(1)
			if int(failures) >= b.failureThreshold {
				if b.state.CompareAndSwap(state, int32(StateOpen)) {
					b.resetCounters()
					b.logTransition(StateClosed, StateOpen)
					return
				}
				continue
			}
			return

		case StateHalfOpen:
			if b.state.CompareAndSwap(state, int32(StateOpen)) {
				b.resetCounters()
				b.logTransition(StateHalfOpen, StateOpen)
				return
			}
			continue

		case StateOpen:
			return
		}
	}
}

func (b *Breaker) resetCounters() {
	b.failures.Store(0)
	b.successes.Store(0)
	b.probeInFlight.Store(0)
}

func (b *Breaker) logTransition(from, to State) {
	b.stats.StateTransitions.Add(1)
	b.logger.Info("circuit breaker state transition",
		"from", from.String(),
		"to", to.String())
}
