package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBudget_PerUserCapBlocksBeyondLimit(t *testing.T) {
	b := NewBudget(1, 100, 10)
	assert.True(t, b.AllowCall("user-1"))
	assert.False(t, b.AllowCall("user-1"), "second call within the same minute should be blocked")
	assert.True(t, b.AllowCall("user-2"), "a different user has its own bucket")
}

func TestBudget_GlobalCapAppliesAcrossUsers(t *testing.T) {
	b := NewBudget(100, 1, 10)
	assert.True(t, b.AllowCall("user-1"))
	assert.False(t, b.AllowCall("user-2"), "global cap should block regardless of per-user bucket")
}

func TestBudget_DailyCapRollsOverAtUTCMidnight(t *testing.T) {
	now := time.Date(2026, 1, 1, 23, 59, 0, 0, time.UTC)
	b := NewBudget(100, 100, 5.0)
	b.nowFn = func() time.Time { return now }

	b.RecordSpend("user-1", 4.0)
	assert.True(t, b.UnderDailyCap("user-1"))
	b.RecordSpend("user-1", 2.0)
	assert.False(t, b.UnderDailyCap("user-1"), "6.0 spent should exceed the 5.0 cap")

	now = now.Add(2 * time.Minute) // rolls into the next UTC day
	assert.True(t, b.UnderDailyCap("user-1"), "a new day should reset the running total")
}
