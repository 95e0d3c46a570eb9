package tools

import (
	"context"
	"sync"
	"time"

	araciotel "github.com/basket/araci/internal/otel"
)

// BreakerState is the three-state circuit breaker lifecycle from §4.2.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// Breaker gates calls to a single tool. Closed forwards calls; after
// FailureThreshold consecutive failures it moves to Open and rejects for
// CoolDown; the next call after CoolDown is a single probe in HalfOpen —
// concurrent callers racing for that probe all call Allow, but only one
// receives permission until the probe resolves.
type Breaker struct {
	FailureThreshold int
	CoolDown         time.Duration

	mu                  sync.Mutex
	state               BreakerState
	consecutiveFailures int
	lastFailureAt       time.Time
	probing             bool

	metrics *araciotel.Metrics
}

// NewBreaker constructs a Closed breaker with the given threshold and
// cool-down. A zero threshold defaults to 5 and a zero cool-down defaults
// to 60s, mirroring the original's CircuitBreaker defaults.
func NewBreaker(failureThreshold int, coolDown time.Duration, metrics *araciotel.Metrics) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if coolDown <= 0 {
		coolDown = 60 * time.Second
	}
	return &Breaker{
		FailureThreshold: failureThreshold,
		CoolDown:         coolDown,
		state:            StateClosed,
		metrics:          metrics,
	}
}

// State returns the breaker's current state without mutating it.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.observeLocked()
}

// observeLocked applies the Open -> HalfOpen cool-down transition as a
// read-time observation, without granting a probe slot. Callers that
// intend to actually execute must go through Allow instead.
func (b *Breaker) observeLocked() BreakerState {
	if b.state == StateOpen && time.Since(b.lastFailureAt) > b.CoolDown {
		return StateHalfOpen
	}
	return b.state
}

// Allow reports whether a call may proceed, and if so reserves the single
// half-open probe slot when applicable. Exactly one concurrent caller
// racing through an Open->HalfOpen transition receives true; the rest see
// false until the probe resolves via OnSuccess/OnFailure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.lastFailureAt) <= b.CoolDown {
			return false
		}
		b.state = StateHalfOpen
		b.probing = true
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// OnSuccess resets the failure counter and, if this was the half-open
// probe, closes the breaker.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	if b.state == StateHalfOpen {
		b.state = StateClosed
	}
	b.probing = false
}

// OnFailure records a failure, tripping the breaker to Open if the
// closed-state threshold is reached, or sending a failed half-open probe
// straight back to Open with a fresh cool-down timer.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	b.consecutiveFailures++
	b.lastFailureAt = time.Now()
	opened := false
	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		opened = true
	case StateClosed:
		if b.consecutiveFailures >= b.FailureThreshold {
			b.state = StateOpen
			opened = true
		}
	}
	b.probing = false
	b.mu.Unlock()

	if opened && b.metrics != nil && b.metrics.BreakerOpens != nil {
		b.metrics.BreakerOpens.Add(context.Background(), 1)
	}
}

// ConsecutiveFailures returns the current failure count, for tests and
// status reporting.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}
