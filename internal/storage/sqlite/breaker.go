package sqlite

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is the state of the circuit breaker.
type BreakerState int

const (
	StateClosed   BreakerState = 0
	StateOpen     BreakerState = 1
	StateHalfOpen BreakerState = 2
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned while the breaker is rejecting requests. It maps
// to the store-unavailable failure class: the caller retries later, nothing
// is swallowed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards the store against hammering a failing database.
// CLOSED (normal) -> OPEN (failing) -> HALF_OPEN (one probe) -> CLOSED.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        BreakerState
	failures     int
	threshold    int
	resetTimeout time.Duration
	lastFailure  time.Time
	nowFunc      func() time.Time // for testing
}

// NewCircuitBreaker creates a breaker that opens after threshold consecutive
// failures and probes again after resetTimeout.
func NewCircuitBreaker(threshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold:    threshold,
		resetTimeout: resetTimeout,
		nowFunc:      time.Now,
	}
}

// Execute runs fn through the breaker.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case StateClosed:
		cb.mu.Unlock()
		err := fn()
		cb.mu.Lock()
		if err != nil {
			cb.failures++
			if cb.failures >= cb.threshold {
				cb.state = StateOpen
				cb.lastFailure = cb.nowFunc()
			}
		} else {
			cb.failures = 0
		}
		cb.mu.Unlock()
		return err

	case StateOpen:
		if cb.nowFunc().Sub(cb.lastFailure) >= cb.resetTimeout {
			// One probe request; success closes, failure reopens.
			cb.state = StateHalfOpen
			cb.mu.Unlock()
			err := fn()
			cb.mu.Lock()
			if err != nil {
				cb.state = StateOpen
				cb.lastFailure = cb.nowFunc()
			} else {
				cb.state = StateClosed
				cb.failures = 0
			}
			cb.mu.Unlock()
			return err
		}
		cb.mu.Unlock()
		return ErrCircuitOpen

	case StateHalfOpen:
		cb.mu.Unlock()
		return ErrCircuitOpen

	default:
		cb.mu.Unlock()
		return ErrCircuitOpen
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
