package llm

import (
	"sync"
	"time"
)

// CircuitBreaker implements spec.md §4.7's cost-routing circuit breaker:
// after Threshold consecutive failures observed globally within Window, it
// trips and refuses further calls for CoolOff. Shared by C4 Stage 2 and C7's
// LLM tier since both route through the same cost-routing rules.
type CircuitBreaker struct {
	mu        sync.Mutex
	threshold int
	window    time.Duration
	coolOff   time.Duration

	failures  []time.Time
	trippedAt time.Time
	nowFn     func() time.Time
}

// NewCircuitBreaker builds a breaker matching spec.md §4.7's defaults
// (K=5 failures within 60s, 5 minute cool-off) when threshold/window/coolOff
// are zero.
func NewCircuitBreaker(threshold int, window, coolOff time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if window <= 0 {
		window = 60 * time.Second
	}
	if coolOff <= 0 {
		coolOff = 5 * time.Minute
	}
	return &CircuitBreaker{threshold: threshold, window: window, coolOff: coolOff, nowFn: time.Now}
}

// Allow reports whether an LLM call may proceed right now.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFn()
	if !b.trippedAt.IsZero() {
		if now.Sub(b.trippedAt) < b.coolOff {
			return false
		}
		// Cool-off elapsed: reopen with a clean failure count.
		b.trippedAt = time.Time{}
		b.failures = nil
	}
	return true
}

// RecordSuccess clears the consecutive-failure streak.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = nil
}

// RecordFailure records a failed call and trips the breaker once Threshold
// failures have landed within Window.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFn()
	cutoff := now.Add(-b.window)
	kept := b.failures[:0]
	for _, f := range b.failures {
		if f.After(cutoff) {
			kept = append(kept, f)
		}
	}
	b.failures = append(kept, now)

	if len(b.failures) >= b.threshold {
		b.trippedAt = now
	}
}
