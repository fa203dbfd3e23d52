// Package retry provides a bounded retry-with-backoff combinator shared by
// all polling and resolution paths, replacing ad-hoc sleep loops.
package retry

import (
	"context"
	"time"
)

// BackoffFunc computes the delay before the next attempt. The attempt
// argument is 1-based and names the attempt that just failed.
type BackoffFunc func(attempt int, base time.Duration) time.Duration

// Config controls a bounded retry loop.
type Config struct {
	// Attempts is the total number of attempts; values below 1 mean 1.
	Attempts int
	// Delay is the base delay fed to the backoff function.
	Delay time.Duration
	// Backoff defaults to Linear when nil.
	Backoff BackoffFunc
	// MaxDelay caps the per-attempt delay; 0 means uncapped.
	MaxDelay time.Duration
}

// Linear grows the delay proportionally to the attempt number.
func Linear(attempt int, base time.Duration) time.Duration {
	return time.Duration(attempt) * base
}

// Exponential doubles the delay on every attempt.
func Exponential(attempt int, base time.Duration) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Do runs fn until it succeeds, attempts are exhausted, or ctx is done.
// The last error is returned when all attempts fail; a context error is
// returned when the wait is interrupted.
func Do(ctx context.Context, cfg Config, fn func(context.Context) error) error {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = Linear
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := fn(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == attempts {
			break
		}

		delay := backoff(attempt, cfg.Delay)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}
