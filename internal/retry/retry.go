package retry

import (
	"context"
	"time"
)

// Policy is a bounded retry schedule with linearly increasing backoff:
// attempt n (0-based) sleeps Base + n*Step before the next try. Both the
// transient-error path and the granularity-retry path in the fetcher share
// one policy so backoff behavior is defined in exactly one place.
type Policy struct {
	Attempts int
	Base     time.Duration
	Step     time.Duration
}

// Backoff returns the delay to apply after the given 0-based attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	return p.Base + time.Duration(attempt)*p.Step
}

// Do runs fn up to p.Attempts times, sleeping the attempt's backoff between
// tries. fn returns done=true to stop early (success or an accepted
// terminal state). The last error is returned when all attempts are spent.
// Context cancellation aborts the wait and returns ctx.Err().
func (p Policy) Do(ctx context.Context, fn func(attempt int) (done bool, err error)) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		done, err := fn(i)
		if done {
			return err
		}
		lastErr = err

		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(p.Backoff(i)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
