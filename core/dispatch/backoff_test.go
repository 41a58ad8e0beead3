package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffSleep(t *testing.T) {
	now := time.Now()
	deadline := now.Add(9 * time.Second)

	require.Equal(t, 9*time.Second, backoffSleep(1, deadline, now))
	require.Equal(t, 9*time.Second/4, backoffSleep(2, deadline, now))
	require.Equal(t, time.Second, backoffSleep(3, deadline, now))
}

func TestBackoffSleepClamps(t *testing.T) {
	now := time.Now()
	deadline := now.Add(time.Second)

	require.Zero(t, backoffSleep(0, deadline, now))
	require.Zero(t, backoffSleep(-1, deadline, now))

	// Past the deadline there is nothing left to wait for.
	require.Zero(t, backoffSleep(3, now.Add(-time.Second), now))
	require.Zero(t, backoffSleep(3, now, now))
}

func TestBackoffSleepShrinksTowardsDeadline(t *testing.T) {
	now := time.Now()
	far := backoffSleep(3, now.Add(10*time.Second), now)
	near := backoffSleep(3, now.Add(100*time.Millisecond), now)
	require.Greater(t, far, near)
}

func TestSleepCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sleep(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), time.Second)
}

func TestSleepZero(t *testing.T) {
	require.NoError(t, sleep(context.Background(), 0))
}
