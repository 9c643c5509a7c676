// Package circuitbreaker stops a run from hammering a transport that keeps
// failing. Once open, calls fail fast until the cooldown elapses.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/price-alerts/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means calls are allowed
	StateClosed State = "closed"
	// StateOpen means calls fail fast
	StateOpen State = "open"
	// StateHalfOpen means one trial call is allowed
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config configures a circuit breaker
type Config struct {
	Name string
	// MaxFailures consecutive failures open the circuit. Zero or less disables the breaker.
	MaxFailures int
	// Cooldown is how long the circuit stays open before a trial call.
	Cooldown time.Duration
}

// CircuitBreaker implements the circuit breaker pattern over consecutive failures
type CircuitBreaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time

	mu               sync.Mutex
	state            State
	consecutiveFails int
	openedAt         time.Time
	rejected         int
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *Config) *CircuitBreaker {
	return &CircuitBreaker{
		name:        config.Name,
		maxFailures: config.MaxFailures,
		cooldown:    config.Cooldown,
		now:         time.Now,
		state:       StateClosed,
	}
}

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn()
	cb.afterRequest(ctx, err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	if cb.cooldown > 0 && cb.now().Sub(cb.openedAt) >= cb.cooldown {
		cb.state = StateHalfOpen
		return nil
	}
	cb.rejected++
	return ErrCircuitOpen
}

func (cb *CircuitBreaker) afterRequest(ctx context.Context, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == StateHalfOpen {
			logging.FromContext(ctx).WithField("circuitBreaker", cb.name).Info("Circuit breaker closed after successful trial")
		}
		cb.state = StateClosed
		cb.consecutiveFails = 0
		return
	}

	cb.consecutiveFails++
	if cb.maxFailures <= 0 {
		return
	}

	if cb.state == StateHalfOpen || cb.consecutiveFails >= cb.maxFailures {
		cb.state = StateOpen
		cb.openedAt = cb.now()
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"circuitBreaker":   cb.name,
			"consecutiveFails": cb.consecutiveFails,
		}).Warn("Circuit breaker opened due to failures")
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Rejected returns how many calls failed fast while the circuit was open.
func (cb *CircuitBreaker) Rejected() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.rejected
}
