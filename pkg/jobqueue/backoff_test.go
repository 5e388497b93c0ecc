package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_GrowsExponentiallyWithinCap(t *testing.T) {
	prevMax := time.Duration(0)
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		d := Backoff(attempt)
		assert.GreaterOrEqual(t, d, backoffBase<<uint(attempt))
		assert.LessOrEqual(t, d, backoffCap+backoffCap/10+time.Second)
		assert.Greater(t, d, prevMax/2) // roughly increasing, allow jitter slack
		prevMax = d
	}
}

func TestBackoff_ClampsAtCapForLargeAttempts(t *testing.T) {
	d := Backoff(20)
	assert.LessOrEqual(t, d, backoffCap+backoffCap/10+time.Second)
	assert.GreaterOrEqual(t, d, backoffCap)
}

func TestBackoff_NegativeAttemptTreatedAsZero(t *testing.T) {
	d := Backoff(-1)
	assert.GreaterOrEqual(t, d, backoffBase)
	assert.LessOrEqual(t, d, backoffBase+backoffBase/10+time.Second)
}
