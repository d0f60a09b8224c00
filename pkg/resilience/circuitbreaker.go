package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Execute when the breaker is open and the
// call was short-circuited without being attempted.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker implements the closed/open/half-open state machine
// described in CircuitBreakerConfig. It is safe for concurrent use.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu          sync.Mutex
	state       State
	failures    int64
	successes   int64
	openedAt    time.Time
}

// NewCircuitBreaker creates a circuit breaker starting in the closed state.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// State returns the current breaker state, transitioning Open->HalfOpen
// first if the cooldown has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeHalfOpenLocked()
	return cb.state
}

func (cb *CircuitBreaker) maybeHalfOpenLocked() {
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.cfg.Timeout {
		cb.transitionLocked(StateHalfOpen)
		cb.successes = 0
	}
}

func (cb *CircuitBreaker) transitionLocked(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// Execute runs fn if the breaker allows it, updating state based on the
// outcome. Returns ErrCircuitOpen without calling fn when the circuit is
// open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn Executor) error {
	cb.mu.Lock()
	cb.maybeHalfOpenLocked()
	if cb.state == StateOpen {
		cb.mu.Unlock()
		return ErrCircuitOpen
	}
	cb.mu.Unlock()

	err := fn(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.onFailureLocked()
		return err
	}
	cb.onSuccessLocked()
	return nil
}

func (cb *CircuitBreaker) onFailureLocked() {
	switch cb.state {
	case StateHalfOpen:
		cb.transitionLocked(StateOpen)
		cb.openedAt = time.Now()
		cb.failures = 0
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.transitionLocked(StateOpen)
			cb.openedAt = time.Now()
			cb.failures = 0
		}
	}
}

func (cb *CircuitBreaker) onSuccessLocked() {
	switch cb.state {
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.transitionLocked(StateClosed)
			cb.failures = 0
		}
	case StateClosed:
		cb.failures = 0
	}
}
