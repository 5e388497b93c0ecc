package mailsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_AllowsBurstImmediately(t *testing.T) {
	l := newLimiter(1, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx))
	}
}

func TestLimiter_BlocksBeyondBurstUntilRefill(t *testing.T) {
	l := newLimiter(1000, 1)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))

	wait, ok := l.take()
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))
}

func TestLimiter_RespectsContextCancellation(t *testing.T) {
	l := newLimiter(0.001, 1)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, 100, remaining(1000, 0))
	assert.Equal(t, 50, remaining(150, 100))
	assert.Equal(t, 1, remaining(100, 100))
	assert.Equal(t, 1, remaining(100, 150))
}
