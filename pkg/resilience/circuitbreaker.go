package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/open-collar/reliablequeue/pkg/errors"
)

// CircuitBreaker implements the standard closed/open/half-open state
// machine around an Executor.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu          sync.Mutex
	state       State
	failures    int64
	successes   int64
	openedAt    time.Time
}

// NewCircuitBreaker creates a circuit breaker in the closed state.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// State returns the circuit breaker's current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute runs fn, tripping or resetting the circuit based on its outcome.
// When the circuit is open and the timeout has not elapsed, Execute
// fails fast without calling fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn Executor) error {
	if !cb.allow() {
		return errors.Unavailable("circuit breaker "+cb.cfg.Name+" is open", nil)
	}

	err := fn(ctx)
	cb.record(err == nil)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.cfg.Timeout {
			cb.transition(StateHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.successes++
			if cb.successes >= cb.cfg.SuccessThreshold {
				cb.transition(StateClosed)
			}
		}
		return
	}

	cb.successes = 0
	if cb.state == StateHalfOpen {
		cb.transition(StateOpen)
		return
	}

	cb.failures++
	if cb.failures >= cb.cfg.FailureThreshold {
		cb.transition(StateOpen)
	}
}

// transition must be called with cb.mu held.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if to == StateOpen {
		cb.openedAt = time.Now()
	}
	if to == StateClosed {
		cb.failures = 0
	}
	if to == StateHalfOpen {
		cb.successes = 0
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}
