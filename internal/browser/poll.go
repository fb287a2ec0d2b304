package browser

import (
	"context"
	"errors"
	"time"
)

// ErrPollTimeout is returned by Poll when the condition never held within the
// allotted time.
var ErrPollTimeout = errors.New("poll timed out")

// Poll invokes fn every interval until it reports done, the timeout elapses,
// or ctx is cancelled. A non-nil error from fn stops the loop immediately.
// This is the single bounded-retry primitive behind every dynamic wait.
func Poll(ctx context.Context, interval, timeout time.Duration, fn func(context.Context) (bool, error)) error {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := fn(pollCtx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ticker.C:
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				// The caller's context went away, not our deadline.
				return ctx.Err()
			}
			return ErrPollTimeout
		}
	}
}
