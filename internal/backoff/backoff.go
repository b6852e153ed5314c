// Package backoff provides the bounded-retry policy used for every
// unreliable call the engine makes: store writes and trigger sink
// register/cancel operations. Retries are short and capped so a failing
// dependency can never stall a reconcile pass past its execution budget.
package backoff

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

const (
	// DefaultAttempts is the number of tries before Do gives up.
	DefaultAttempts = 3

	// baseDelay is the starting backoff interval (before jitter).
	baseDelay = 200 * time.Millisecond

	// maxDelay caps the backoff interval.
	maxDelay = 2 * time.Second
)

// Do executes fn up to maxAttempts times with exponential backoff and jitter.
// It returns nil on the first successful call, or a wrapped error containing
// the last failure once attempts are exhausted. Context cancellation aborts
// between attempts and during a backoff wait.
func Do(ctx context.Context, maxAttempts int, fn func() error) error {
	var lastErr error
	for attempt := range maxAttempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay(attempt)):
			}
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", maxAttempts, lastErr)
}

// delay computes the wait for a given attempt index: exponential growth
// capped at maxDelay, with uniform jitter in [d/2, d).
func delay(attempt int) time.Duration {
	d := baseDelay * (1 << attempt)
	if d > maxDelay {
		d = maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 2)) //nolint:gosec // jitter does not need crypto/rand
	return d/2 + jitter
}
