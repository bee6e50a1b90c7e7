// Package circuitbreaker sheds calls to an upstream that keeps failing,
// so a dead scoring backend degrades to fallback scores instead of tying
// up every apply in timeouts.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen reports that calls to the upstream are currently shed.
var ErrCircuitOpen = errors.New("circuit open")

const (
	defaultFailureThreshold = 5
	defaultOpenTimeout      = 30 * time.Second
)

// Config bounds how quickly a breaker trips and how long it sheds.
type Config struct {
	FailureThreshold int           // consecutive failures before tripping
	OpenTimeout      time.Duration // shed window after tripping
}

// Breaker trips after a streak of consecutive failures. While tripped,
// Allow returns ErrCircuitOpen until the open timeout has passed; the
// first call admitted after that is a trial whose outcome either closes
// the breaker or starts another shed window.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	timeout   time.Duration
	clock     func() time.Time

	failures int
	tripped  bool
	trialing bool
	openedAt time.Time
}

func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaultOpenTimeout
	}
	return &Breaker{
		threshold: cfg.FailureThreshold,
		timeout:   cfg.OpenTimeout,
		clock:     time.Now,
	}
}

// Allow reports whether the caller may contact the upstream. Only one
// trial call is admitted per shed window; its outcome must be reported
// through RecordSuccess or RecordFailure before another is let through.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.tripped {
		return nil
	}
	if b.trialing || b.clock().Sub(b.openedAt) < b.timeout {
		return ErrCircuitOpen
	}
	b.trialing = true
	return nil
}

// RecordSuccess clears the failure streak and closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.tripped = false
	b.trialing = false
}

// RecordFailure extends the failure streak. The breaker trips when the
// streak reaches the threshold, and re-trips immediately when a trial
// call fails.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.trialing || b.failures >= b.threshold {
		b.tripped = true
		b.trialing = false
		b.openedAt = b.clock()
	}
}
