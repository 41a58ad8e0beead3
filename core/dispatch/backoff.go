package dispatch

import (
	"context"
	"time"
)

// backoffSleep returns how long to pause after a connection failure before
// the next attempt: the time remaining until the deadline divided by the
// square of the attempts left. Many attempts with lots of time gives a
// conservative pause; few attempts near the deadline gives a short one, so
// there is room for a last try. Clamped to zero at zero attempts left or
// past the deadline.
func backoffSleep(attemptsLeft int, deadline, now time.Time) time.Duration {
	if attemptsLeft <= 0 {
		return 0
	}
	left := deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	return left / time.Duration(attemptsLeft*attemptsLeft)
}

// sleep blocks for d, returning early with ctx.Err() when ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
