package jobqueue

import (
	"math/rand"
	"time"
)

// MaxAttempts is spec.md §4.5's retry ceiling; exceeding it moves a job to
// the failed terminal state.
const MaxAttempts = 5

const (
	backoffBase = 60 * time.Second
	backoffCap  = 30 * time.Minute
)

// Backoff computes spec.md §4.5's reschedule delay: min(cap, base*2^attempt)
// plus up to 10% jitter, adapted from
// pkg/enrichment/queues/retry.go's RetryPolicy.CalculateBackoff (same
// base*factor^attempt shape, generalized to base*2^attempt with a capped
// ceiling and jitter instead of a configurable factor).
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := backoffBase << uint(attempt)
	if d <= 0 || d > backoffCap { // overflow or past cap
		d = backoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 10 + 1))
	return d + jitter
}
