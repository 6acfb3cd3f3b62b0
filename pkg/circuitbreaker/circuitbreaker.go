// Package circuitbreaker sheds load when a protected operation keeps
// failing. The breaker trips open after a run of consecutive failures,
// rejects calls outright while open, and probes with real traffic once the
// cool-off passes: a run of successful probes closes it, a single failed
// probe reopens it.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned without running the call while the breaker is open.
var ErrOpen = errors.New("circuit breaker is open")

// State is the breaker's position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

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

// Breaker is a mutex-guarded circuit breaker. The zero value is not usable;
// construct with New.
type Breaker struct {
	mu sync.Mutex

	failureThreshold uint32
	successThreshold uint32
	cooldown         time.Duration

	state     State
	failures  uint32 // consecutive failures while closed
	successes uint32 // consecutive successes while half-open
	openedAt  time.Time

	now func() time.Time
}

// New creates a closed breaker. failureThreshold consecutive failures open
// it; after cooldown it half-opens, and successThreshold consecutive
// successes close it again.
func New(failureThreshold, successThreshold uint32, cooldown time.Duration) *Breaker {
	return &Breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		cooldown:         cooldown,
		state:            StateClosed,
		now:              time.Now,
	}
}

// State returns the breaker's current position, accounting for an elapsed
// cooldown.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	return b.state
}

// Execute runs fn unless the breaker is open, and feeds the outcome back
// into the breaker. fn's error is returned as-is.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	b.refresh()
	if b.state == StateOpen {
		b.mu.Unlock()
		return ErrOpen
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

// refresh moves an open breaker to half-open once the cooldown has passed.
// Callers hold the mutex.
func (b *Breaker) refresh() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) > b.cooldown {
		b.state = StateHalfOpen
		b.successes = 0
	}
}

func (b *Breaker) recordSuccess() {
	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	case StateClosed:
		b.failures = 0
	}
}

func (b *Breaker) recordFailure() {
	switch b.state {
	case StateHalfOpen:
		b.trip()
	case StateClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.trip()
		}
	}
}

func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = 0
	b.successes = 0
}
