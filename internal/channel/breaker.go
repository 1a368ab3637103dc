package channel

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// BreakerState is the state of a channel's circuit breaker.
type BreakerState int

const (
	// BreakerClosed lets sends through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects sends until the reset timeout elapses.
	BreakerOpen
	// BreakerHalfOpen lets one trial call through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a send is rejected by an open breaker.
var ErrCircuitOpen = eris.New("channel: circuit open")

// breaker stops a pass from hammering a transport that is down. Only
// transient failures count toward the threshold.
type breaker struct {
	threshold int
	reset     time.Duration
	now       func() time.Time

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
}

func newBreaker(threshold int, reset time.Duration, now func() time.Time) *breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if reset <= 0 {
		reset = 30 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &breaker{threshold: threshold, reset: reset, now: now}
}

func (b *breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if b.now().Sub(b.lastFailure) < b.reset {
			return ErrCircuitOpen
		}
		b.state = BreakerHalfOpen
	}
	return nil
}

func (b *breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !IsTransient(err) {
		b.failures = 0
		b.state = BreakerClosed
		return
	}

	b.failures++
	b.lastFailure = b.now()
	if b.state == BreakerHalfOpen || b.failures >= b.threshold {
		b.state = BreakerOpen
	}
}

func (b *breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.now().Sub(b.lastFailure) >= b.reset {
		return BreakerHalfOpen
	}
	return b.state
}
