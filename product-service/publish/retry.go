package publish

import (
	"context"
	"time"
)

// RetryConfig bounds the delivery attempts made for a single event.
type RetryConfig struct {
	// MaxAttempts counts the first attempt.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt; it doubles afterwards.
	BaseDelay time.Duration
	// AttemptTimeout bounds each call to the substrate.
	AttemptTimeout time.Duration
}

// DefaultRetry is three attempts, 1s then 2s apart, 5s per attempt.
func DefaultRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		AttemptTimeout: 5 * time.Second,
	}
}

// maxBackoff bounds a single wait between attempts.
const maxBackoff = 5 * time.Minute

type sleeper func(ctx context.Context, d time.Duration) error

// exponentialBackoff returns the wait before the given attempt number. The
// first attempt fires immediately; attempt k waits base * 2^(k-2), capped at
// maxBackoff.
func exponentialBackoff(attempt int, base time.Duration) time.Duration {
	if attempt <= 1 || base <= 0 {
		return 0
	}
	d := base
	for i := 2; i < attempt; i++ {
		if d >= maxBackoff/2 {
			return maxBackoff
		}
		d *= 2
	}
	return min(d, maxBackoff)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retryWithBackoff runs fn until it succeeds or the attempts are exhausted.
// The error of the last attempt is returned as is. When ctx ends, the loop
// stops and ctx.Err() is returned.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, sleep sleeper, fn func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if serr := sleep(ctx, exponentialBackoff(attempt, cfg.BaseDelay)); serr != nil {
				return attempt - 1, serr
			}
		}

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if cfg.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.AttemptTimeout)
		}
		err = fn(attemptCtx, attempt)
		cancel()
		if err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
	}
	return maxAttempts, err
}
