package llm

import (
	"context"
	"time"
)

// backoffSchedule is the sleep before each retry of a rate-limited call.
// Two retries after the initial attempt: three attempts total.
var backoffSchedule = []time.Duration{30 * time.Second, 60 * time.Second}

// Retry wraps a Client with rate-limit backoff. Only ErrRateLimited is
// retried; every other error propagates immediately so callers see real
// failures without delay.
type Retry struct {
	inner Client
	sleep func(time.Duration) // overridable for tests
}

// NewRetry wraps inner with the standard backoff schedule.
func NewRetry(inner Client) *Retry {
	return &Retry{inner: inner, sleep: time.Sleep}
}

// Complete implements Client.
func (r *Retry) Complete(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= len(backoffSchedule); attempt++ {
		if attempt > 0 {
			r.sleep(backoffSchedule[attempt-1])
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
		}
		out, err := r.inner.Complete(ctx, req)
		if err == nil {
			return out, nil
		}
		if !IsRateLimited(err) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}
