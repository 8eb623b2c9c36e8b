package weather

import (
	"context"
	"errors"
	"math"
	"time"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultBackoff is three attempts starting at 500ms.
var DefaultBackoff = BackoffConfig{
	MaxAttempts:     3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

// retryable reports whether another attempt can help.
func retryable(err error) bool {
	return errors.Is(err, ErrTransientNetwork) || errors.Is(err, context.DeadlineExceeded)
}

// withRetry runs fn until it succeeds, returns a non-retryable error, runs out
// of attempts or ctx is done. Each attempt gets its own timeout.
func withRetry(ctx context.Context, cfg BackoffConfig, attemptTimeout time.Duration, fn func(ctx context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = runAttempt(ctx, attemptTimeout, fn)
		if lastErr == nil {
			return nil
		}
		// The caller's context ending is not something a retry can fix.
		if ctx.Err() != nil || !retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}

		delay := cfg.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.MaxInterval && cfg.MaxInterval > 0 {
			delay = cfg.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func runAttempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(actx)
}
