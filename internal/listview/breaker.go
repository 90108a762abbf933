package listview

import "sync"

// DefaultFailureThreshold is used when a non-positive threshold is given.
const DefaultFailureThreshold = 3

// Breaker pauses background polling after consecutive failed loads.
type Breaker struct {
	mu        sync.Mutex
	failures  int
	threshold int
	paused    bool
}

// NewBreaker creates a breaker that trips after threshold failures in a row.
func NewBreaker(threshold int) *Breaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	return &Breaker{threshold: threshold}
}

// Failure records a failed load and reports whether this call tripped the
// breaker.
func (b *Breaker) Failure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold && !b.paused {
		b.paused = true
		return true
	}
	return false
}

// Success clears the failure streak.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.paused = false
}

// Reset is Success under the name callers use for a manual retry.
func (b *Breaker) Reset() { b.Success() }

// Paused reports whether polling should stop until the next manual retry.
func (b *Breaker) Paused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused
}

// Failures returns the current streak length.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Threshold returns the configured trip point.
func (b *Breaker) Threshold() int {
	return b.threshold
}
