// Package pace provides the retry and rate-limiting primitives wrapped
// around every remote action.
package pace

import (
	"context"
	"math/rand"
	"time"

	"github.com/drover-io/drover/log"
	"github.com/drover-io/drover/types"
)

// SleepFunc suspends for the given duration or until ctx is canceled.
// Injected so time-dependent behavior is testable without real delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the production sleep function.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy re-executes a fallible operation with exponential backoff.
//
// Sleep between attempts is backoff_factor * 2^attempt, jittered ±20%.
// CONFIG_ERROR failures are never retried. After MaxAttempts consecutive
// failures the last error is returned to the caller.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts (first try included).
	MaxAttempts int
	// BackoffFactor is the base delay multiplier.
	BackoffFactor time.Duration
	// Sleep is the suspend function; nil means real sleeping.
	Sleep SleepFunc
	// Rand supplies jitter; nil means the shared global source.
	Rand *rand.Rand
	// Logger receives a warning per retry; nil disables logging.
	Logger *log.Logger
	// OnRetry, when set, observes each retry (attempt number, error).
	OnRetry func(attempt int, err error)
}

// DefaultRetryPolicy mirrors the observed defaults: 3 attempts, 1s base.
func DefaultRetryPolicy(logger *log.Logger) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		BackoffFactor: time.Second,
		Logger:        logger,
	}
}

// Run invokes op until it succeeds, exhausts attempts, or hits a
// non-retryable failure.
func (p RetryPolicy) Run(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if p.OnRetry != nil {
				p.OnRetry(attempt, lastErr)
			}
			if p.Logger != nil {
				p.Logger.Warn("retrying after failure", map[string]any{
					"attempt":      attempt,
					"max_attempts": attempts,
					"error":        lastErr.Error(),
				})
			}
			if err := sleep(ctx, p.backoff(attempt-1)); err != nil {
				return err
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !types.IsRetryable(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

// backoff computes the jittered delay before retrying after `attempt`
// consecutive failures.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	base := p.BackoffFactor
	if base <= 0 {
		base = time.Second
	}
	d := base * time.Duration(1<<uint(attempt))
	return jitter(d, 0.2, p.Rand)
}

// jitter scales d by a uniform random factor in [1-spread, 1+spread].
func jitter(d time.Duration, spread float64, r *rand.Rand) time.Duration {
	var f float64
	if r != nil {
		f = r.Float64()
	} else {
		f = rand.Float64()
	}
	factor := 1 - spread + 2*spread*f
	return time.Duration(float64(d) * factor)
}
