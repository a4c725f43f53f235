// ABOUTME: Retry utilities with exponential backoff and jitter
// ABOUTME: Shared by the store (busy/locked), the LLM client and transports
package util

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// CalculateBackoff returns exponential backoff with jitter
// Base delay is doubled each attempt, with random jitter up to 25%
func CalculateBackoff(baseDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	// Cap attempt to avoid overflow in bit shift (max 30 for safety)
	if attempt > 30 {
		attempt = 30
	}
	backoff := baseDelay * time.Duration(1<<uint(attempt))
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return withJitter(backoff)
}

// CappedBackoff returns initial*2^(attempt-1) with ±25% jitter, never above maxWait.
// Attempt 1 is the wait before the first retry.
func CappedBackoff(initial, maxWait time.Duration, attempt int) time.Duration {
	if attempt <= 0 || initial <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	backoff := initial * time.Duration(1<<uint(attempt-1))
	if backoff <= 0 || (maxWait > 0 && backoff > maxWait) {
		backoff = maxWait
	}
	backoff = withJitter(backoff)
	if maxWait > 0 && backoff > maxWait {
		backoff = maxWait
	}
	return backoff
}

func withJitter(d time.Duration) time.Duration {
	if d < 4 {
		return d
	}
	// -25% to +25% using auto-seeded math/rand/v2
	jitter := time.Duration(rand.Int64N(int64(d)/2)) - d/4
	return d + jitter
}

// Policy bounds a retry loop
type Policy struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	// OnRetry is called before sleeping; attempt counts from 1
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Retry runs op until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. The last error is returned unchanged. Context
// errors are never retried.
func Retry[T any](ctx context.Context, p Policy, retryable func(error) bool, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return zero, err
		}
		if retryable != nil && !retryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		wait := CappedBackoff(p.InitialWait, p.MaxWait, attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		if err := Sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}

// RetryErr is Retry for operations without a result value
func RetryErr(ctx context.Context, p Policy, retryable func(error) bool, op func(ctx context.Context) error) error {
	_, err := Retry(ctx, p, retryable, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
