// Package breaker implements a per-provider circuit breaker.
// It protects outbound provider calls behind a three-state gate:
// Closed (calls pass through), Open (calls fail fast) and HalfOpen
// (exactly one trial call decides the next transition).
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means calls pass through normally.
	StateClosed State = iota
	// StateOpen means calls are rejected immediately.
	StateOpen
	// StateHalfOpen means a single trial call is in flight or allowed.
	StateHalfOpen
)

// String returns a human-readable state name.
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

// ErrOpen is the sentinel error for rejections by an open circuit.
// Use errors.Is(err, ErrOpen) to detect fail-fast rejections.
var ErrOpen = errors.New("breaker: circuit open")

// OpenError carries the provider name and the remaining wait before the
// next trial is allowed. It unwraps to ErrOpen.
type OpenError struct {
	Provider   string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return fmt.Sprintf("breaker: circuit open for provider %s (retry after %s)", e.Provider, e.RetryAfter)
}

// Unwrap returns ErrOpen for errors.Is compatibility.
func (e *OpenError) Unwrap() error {
	return ErrOpen
}

// Config holds circuit breaker thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failures in Closed
	// before the circuit opens.
	FailureThreshold int
	// ResetTimeout is how long the circuit stays Open before a single
	// HalfOpen trial is allowed.
	ResetTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
}

// Operation is a breaker-wrapped provider call.
type Operation func(ctx context.Context) (any, error)

// CircuitBreaker gates calls to a single failure-prone provider.
// All methods are safe for concurrent use; state transitions are atomic
// with respect to concurrent callers of the same breaker.
type CircuitBreaker struct {
	mu sync.Mutex

	name   string
	config Config

	state         State
	failureCount  int
	successCount  int
	lastFailureAt time.Time
	trialInFlight bool
	// generation invalidates in-flight results after a reset or state
	// change, so a stale outcome cannot mutate a newer state.
	generation uint64

	now func() time.Time // injectable clock for tests
}

// New creates a circuit breaker for the named provider.
func New(name string, config Config) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = DefaultConfig().ResetTimeout
	}

	return &CircuitBreaker{
		name:   name,
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
}

// Name returns the provider key this breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs op through the circuit breaker.
//
// Closed: op runs; success resets the failure count, failure increments it
// and opens the circuit at the threshold. Open: rejects with *OpenError
// unless the reset timeout has elapsed, in which case this caller performs
// the single HalfOpen trial. HalfOpen: only the trial caller runs op;
// concurrent callers are rejected as if the circuit were Open.
//
// The breaker never retries; retry policy belongs to the caller.
func (cb *CircuitBreaker) Execute(ctx context.Context, op Operation) (any, error) {
	gen, trial, err := cb.admit()
	if err != nil {
		return nil, err
	}

	result, opErr := op(ctx)
	cb.record(gen, trial, opErr == nil)

	if opErr != nil {
		return nil, opErr
	}

	return result, nil
}

// admit decides whether the call may proceed. It returns the generation
// observed at admission and whether this call is the HalfOpen trial.
func (cb *CircuitBreaker) admit() (uint64, bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return cb.generation, false, nil

	case StateOpen:
		elapsed := cb.now().Sub(cb.lastFailureAt)
		if elapsed < cb.config.ResetTimeout {
			return 0, false, &OpenError{
				Provider:   cb.name,
				RetryAfter: cb.config.ResetTimeout - elapsed,
			}
		}
		// Timeout elapsed: this caller performs the single trial.
		cb.toHalfOpenLocked()
		cb.trialInFlight = true

		return cb.generation, true, nil

	case StateHalfOpen:
		if cb.trialInFlight {
			// Another caller owns the trial; reject as if Open.
			return 0, false, &OpenError{Provider: cb.name, RetryAfter: cb.config.ResetTimeout}
		}
		cb.trialInFlight = true

		return cb.generation, true, nil
	}

	return cb.generation, false, nil
}

// record applies a call outcome. Outcomes from a superseded generation
// (reset or state change happened meanwhile) are discarded.
func (cb *CircuitBreaker) record(gen uint64, trial, success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if gen != cb.generation {
		return
	}

	if trial {
		cb.trialInFlight = false
		if success {
			cb.toClosedLocked()
		} else {
			cb.toOpenLocked()
		}

		return
	}

	if success {
		cb.successCount++
		cb.failureCount = 0

		return
	}

	cb.failureCount++
	cb.lastFailureAt = cb.now()

	if cb.failureCount >= cb.config.FailureThreshold {
		cb.toOpenLocked()
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.state
}

// Counts is a point-in-time view of the breaker counters.
type Counts struct {
	State         State
	FailureCount  int
	SuccessCount  int
	LastFailureAt time.Time
}

// Counts returns a snapshot of the breaker counters.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Counts{
		State:         cb.state,
		FailureCount:  cb.failureCount,
		SuccessCount:  cb.successCount,
		LastFailureAt: cb.lastFailureAt,
	}
}

// Reset forces the breaker back to Closed with zeroed counters.
// Any in-flight call outcome is discarded when it lands.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.toClosedLocked()
}

func (cb *CircuitBreaker) toClosedLocked() {
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.trialInFlight = false
	cb.generation++
}

func (cb *CircuitBreaker) toOpenLocked() {
	cb.state = StateOpen
	cb.lastFailureAt = cb.now()
	cb.trialInFlight = false
	cb.generation++
}

func (cb *CircuitBreaker) toHalfOpenLocked() {
	cb.state = StateHalfOpen
	cb.generation++
}
