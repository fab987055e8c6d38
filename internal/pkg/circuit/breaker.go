// Package circuit guards calls into flaky collaborators (market data, ledger, AI).
package circuit

import (
	"context"
	"errors"
	"sync"
	"time"

	"botarena/internal/logger"
)

// ErrOpen is returned by Do while the breaker rejects calls.
var ErrOpen = errors.New("circuit open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// Options configure a Breaker. Threshold <= 0 disables tripping.
type Options struct {
	Threshold int
	Cooldown  time.Duration
	Now       func() time.Time
	OnChange  func(name string, from, to State)
}

// Stats is a point-in-time view of a breaker.
type Stats struct {
	State    State
	Failures int
	Trips    int
}

// Breaker opens after Threshold consecutive failures and lets one probe
// through once Cooldown has passed since the last failure.
type Breaker struct {
	name string
	opts Options

	mu       sync.Mutex
	state    State
	failures int
	trips    int
	lastFail time.Time
}

func New(name string, opts Options) *Breaker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Breaker{name: name, opts: opts}
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{State: b.state, Failures: b.failures, Trips: b.trips}
}

func (b *Breaker) State() State { return b.Stats().State }

// Do runs fn when the breaker allows it and records the outcome.
// context.Canceled is passed through without counting as a failure:
// the caller gave up, the collaborator did not fail.
func (b *Breaker) Do(fn func() error) error {
	if b == nil {
		return fn()
	}
	if !b.admit() {
		return ErrOpen
	}
	err := fn()
	switch {
	case err == nil:
		b.succeed()
	case errors.Is(err, context.Canceled):
	default:
		b.fail()
	}
	return err
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return true
	}
	if b.opts.Now().Sub(b.lastFail) <= b.opts.Cooldown {
		return false
	}
	b.moveTo(StateHalfOpen)
	return true
}

func (b *Breaker) succeed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.state == StateHalfOpen {
		b.moveTo(StateClosed)
	}
}

func (b *Breaker) fail() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFail = b.opts.Now()
	switch b.state {
	case StateClosed:
		if b.opts.Threshold > 0 && b.failures >= b.opts.Threshold {
			b.moveTo(StateOpen)
		}
	case StateHalfOpen:
		b.moveTo(StateOpen)
	}
}

// moveTo must be called with mu held.
func (b *Breaker) moveTo(to State) {
	from := b.state
	b.state = to
	if to == StateOpen {
		b.trips++
	}
	if b.opts.OnChange != nil {
		go b.opts.OnChange(b.name, from, to)
		return
	}
	logger.Warnf("Breaker %s: %s -> %s (failures=%d/%d, cooldown=%s)",
		b.name, from, to, b.failures, b.opts.Threshold, b.opts.Cooldown)
}
