// Package resilience provides a circuit breaker for flaky external
// collaborators. The chat service wraps the completion provider with
// it so a struggling provider stops eating the full call timeout on
// every message and requests degrade to canned responses immediately.
package resilience

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"caixinha-backend/pkg/logger"
)

// State represents the state of the circuit breaker
type State string

const (
	StateClosed   State = "closed"
	StateHalfOpen State = "half_open"
	StateOpen     State = "open"
)

// ErrOpen is returned by Allow-guarded calls while the breaker rejects
// traffic.
var ErrOpen = errors.New("circuit breaker open")

// CircuitBreaker trips after a run of consecutive failures and lets a
// single probe through once the cooldown has passed.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	cooldown         time.Duration

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	lastFailureTime     time.Time
	probeInFlight       bool
}

// NewCircuitBreaker creates a closed breaker. Non-positive arguments
// fall back to 5 failures and a 30s cooldown.
func NewCircuitBreaker(name string, failureThreshold int, cooldown time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		state:            StateClosed,
	}
}

// Allow reports whether a call may proceed. In the open state it
// transitions to half-open after the cooldown and admits one probe.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.lastFailureTime) < cb.cooldown {
			return false
		}
		cb.transition(StateHalfOpen)
		cb.probeInFlight = true
		return true
	case StateHalfOpen:
		if cb.probeInFlight {
			return false
		}
		cb.probeInFlight = true
		return true
	}
	return false
}

// RecordSuccess closes the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures = 0
	cb.probeInFlight = false
	if cb.state != StateClosed {
		cb.transition(StateClosed)
	}
}

// RecordFailure counts a failure; at the threshold (or on a failed
// half-open probe) the breaker opens.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++
	cb.lastFailureTime = time.Now()
	cb.probeInFlight = false

	if cb.state == StateHalfOpen || cb.consecutiveFailures >= cb.failureThreshold {
		if cb.state != StateOpen {
			cb.transition(StateOpen)
		}
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// transition must be called with cb.mu held.
func (cb *CircuitBreaker) transition(to State) {
	logger.Info("circuit breaker state change",
		zap.String("breaker", cb.name),
		zap.String("from", string(cb.state)),
		zap.String("to", string(to)),
		zap.Int("consecutive_failures", cb.consecutiveFailures))
	cb.state = to
}
