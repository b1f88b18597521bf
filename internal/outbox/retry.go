package outbox

import (
	"context"
	"time"
)

// Retry runs a side effect up to MaxAttempts times with doubling backoff.
type Retry struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultRetry() Retry {
	return Retry{MaxAttempts: 5, BaseBackoff: 200 * time.Millisecond, MaxBackoff: 10 * time.Second}
}

// Backoff returns the wait after the given failed attempt (1-based).
func (r Retry) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return r.MaxBackoff
	}
	backoff := r.BaseBackoff * time.Duration(1<<uint(attempt-1))
	if r.MaxBackoff > 0 && backoff > r.MaxBackoff {
		backoff = r.MaxBackoff
	}
	return backoff
}

// Do returns the number of attempts made and the last error.
func (r Retry) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	max := r.MaxAttempts
	if max < 1 {
		max = 1
	}
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		if err = fn(ctx); err == nil {
			return attempt, nil
		}
		if attempt == max {
			return attempt, err
		}
		t := time.NewTimer(r.Backoff(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return attempt, err
		case <-t.C:
		}
	}
	return max, err
}
