package services

import (
	"context"
	"time"
)

// backoff runs fn up to attempts times, doubling the delay after each failure.
// It gives up early when shouldRetry rejects an error or ctx is done, and returns the last error.
type backoff struct {
	attempts    int
	base        time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	shouldRetry func(err error) bool
	onRetry     func(attempt int, delay time.Duration, err error)
}

func (b backoff) run(ctx context.Context, fn func() error) error {
	attempts := max(1, b.attempts)
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if b.shouldRetry != nil && !b.shouldRetry(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		delay := b.base << attempt
		if b.onRetry != nil {
			b.onRetry(attempt+1, delay, err)
		}
		if err := b.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}
