package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	b := NewCircuitBreaker(3, time.Minute, time.Minute)
	assert.True(t, b.Allow())

	b.RecordFailure()
	b.RecordFailure()
	assert.True(t, b.Allow(), "should still allow below threshold")

	b.RecordFailure()
	assert.False(t, b.Allow(), "should trip at threshold")
}

func TestCircuitBreaker_SuccessResetsStreak(t *testing.T) {
	b := NewCircuitBreaker(2, time.Minute, time.Minute)
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	assert.True(t, b.Allow(), "success should have reset the failure streak")
}

func TestCircuitBreaker_ReopensAfterCoolOff(t *testing.T) {
	now := time.Now()
	b := NewCircuitBreaker(1, time.Minute, 10*time.Second)
	b.nowFn = func() time.Time { return now }

	b.RecordFailure()
	assert.False(t, b.Allow())

	now = now.Add(11 * time.Second)
	assert.True(t, b.Allow(), "should reopen once cool-off elapses")
}

func TestCircuitBreaker_OldFailuresAgeOutOfWindow(t *testing.T) {
	now := time.Now()
	b := NewCircuitBreaker(2, 10*time.Second, time.Minute)
	b.nowFn = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(11 * time.Second)
	b.RecordFailure()

	assert.True(t, b.Allow(), "first failure should have aged out of the window")
}
