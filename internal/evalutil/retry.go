package evalutil

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryPolicy bounds a retry loop: every loop has a fixed attempt ceiling and
// a capped exponential backoff with random jitter.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
}

// DefaultRetryPolicy matches the upstream rate-limit handling used by the
// template generation, simulation, and judge calls.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 6,
	Base:        900 * time.Millisecond,
	Cap:         20 * time.Second,
}

// Backoff returns the delay before the given zero-based attempt, doubling
// from the base up to the cap, with up to 25% random jitter added.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	base := p.Base
	if base <= 0 || attempt < 0 {
		return 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.Cap > 0 && d >= p.Cap {
			d = p.Cap
			break
		}
	}
	if p.Cap > 0 && d > p.Cap {
		d = p.Cap
	}
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}

// Retry runs op until it succeeds, returns a non-retryable error, or the
// attempt ceiling is reached. retryable decides which errors are worth
// another attempt.
func Retry(ctx context.Context, p RetryPolicy, retryable func(error) bool, op func(context.Context) error) error {
	if op == nil {
		return errors.New("evalutil: nil retry op")
	}
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		last = op(ctx)
		if last == nil {
			return nil
		}
		if retryable == nil || !retryable(last) {
			return last
		}
		if attempt == attempts-1 {
			break
		}
		if err := SleepWithContext(ctx, p.Backoff(attempt)); err != nil {
			return err
		}
	}
	return last
}

// SleepWithContext sleeps for d or until the context is done.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
