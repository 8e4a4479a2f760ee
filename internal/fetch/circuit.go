package fetch

import (
	"fmt"
	"sync"
	"time"
)

// BreakerState represents the circuit breaker state
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // Normal operation
	StateOpen     BreakerState = "open"      // Upstream considered down
	StateHalfOpen BreakerState = "half_open" // Testing recovery
)

// ErrCircuitOpen is returned while the breaker refuses calls. RetryAfter is
// the remaining cooldown.
type ErrCircuitOpen struct {
	RetryAfter time.Duration
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit open, retry after %ds", int(e.RetryAfter.Seconds()))
}

// CircuitBreaker protects a single upstream call-site. A run of consecutive
// failures opens the circuit; after the recovery time a single probe call is
// let through, and its outcome decides whether the circuit closes or
// re-opens with a fresh cooldown.
type CircuitBreaker struct {
	mu                  sync.Mutex
	state               BreakerState
	consecutiveFailures int
	openedAt            time.Time
	probing             bool

	failureThreshold int
	recoveryTime     time.Duration
	now              func() time.Time
}

// NewCircuitBreaker creates a breaker with the given threshold and recovery
// window. Non-positive arguments fall back to the defaults (5 failures, 60s).
func NewCircuitBreaker(failureThreshold int, recoveryTime time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if recoveryTime <= 0 {
		recoveryTime = 60 * time.Second
	}
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		recoveryTime:     recoveryTime,
		now:              time.Now,
	}
}

// Do invokes fn subject to the breaker state. While open it fails fast with
// ErrCircuitOpen without invoking fn.
func (cb *CircuitBreaker) Do(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}

	err := fn()
	cb.record(err)
	return err
}

// allow decides whether the next call may execute, transitioning
// OPEN -> HALF_OPEN once the cooldown has elapsed.
func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateHalfOpen:
		// Only one probe in flight at a time.
		if cb.probing {
			return &ErrCircuitOpen{RetryAfter: cb.recoveryTime}
		}
		cb.probing = true
		return nil
	default: // StateOpen
		elapsed := cb.now().Sub(cb.openedAt)
		if elapsed < cb.recoveryTime {
			return &ErrCircuitOpen{RetryAfter: cb.recoveryTime - elapsed}
		}
		cb.state = StateHalfOpen
		cb.probing = true
		return nil
	}
}

// record settles the breaker state from the call outcome.
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.state = StateClosed
		cb.consecutiveFailures = 0
		cb.probing = false
		return
	}

	if cb.state == StateHalfOpen {
		// Probe failed: re-open and restart the cooldown.
		cb.state = StateOpen
		cb.openedAt = cb.now()
		cb.probing = false
		return
	}

	cb.consecutiveFailures++
	if cb.consecutiveFailures >= cb.failureThreshold {
		cb.state = StateOpen
		cb.openedAt = cb.now()
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
