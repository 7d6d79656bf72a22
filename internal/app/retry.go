/**
 * @description
 * One shared retry policy applied to every transient-failure call site
 * (registrar renewals, store writes, content polling) instead of ad-hoc
 * loops per caller.
 */
package app

import (
	"context"
	"math/rand"
	"time"

	"github.com/meetscribe/subscription-service/internal/domain"
)

// RetryPolicy retries an operation with exponential backoff and jitter.
// Only errors the domain taxonomy classifies as transient are retried;
// terminal errors (NotFound, Validation, Unauthorized) return immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the bounded-retry contract used by the sweep:
// up to 3 attempts, 1s base delay, capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Do runs op, retrying transient failures up to MaxAttempts total attempts.
// The last error is returned when attempts are exhausted.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = op(ctx)
		if err == nil || !domain.IsRetryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.delay(attempt)):
		}
	}
	return err
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	d := base << uint(attempt)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	// Up to 50% jitter so retries from parallel workers spread out.
	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}
