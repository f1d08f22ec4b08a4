package pace

import (
	"context"
	"math/rand"
	"time"
)

// RateLimiter paces sequential actions of a single task.
//
// This is deliberately not a token bucket: there is exactly one
// foreground task per process, so pacing is a fixed delay before each
// remote action, optionally jittered to avoid a mechanical cadence.
type RateLimiter struct {
	// BaseDelay is the configured delay between actions.
	BaseDelay time.Duration
	// Jitter enables scaling by a uniform factor in [0.8, 1.2].
	Jitter bool
	// Sleep is the suspend function; nil means real sleeping.
	Sleep SleepFunc
	// Rand supplies jitter; nil means the shared global source.
	Rand *rand.Rand
}

// Delay returns the next inter-action delay.
func (l RateLimiter) Delay() time.Duration {
	if l.BaseDelay <= 0 {
		return 0
	}
	if !l.Jitter {
		return l.BaseDelay
	}
	return jitter(l.BaseDelay, 0.2, l.Rand)
}

// Wait suspends for the next delay, honoring ctx cancellation.
func (l RateLimiter) Wait(ctx context.Context) error {
	d := l.Delay()
	if d <= 0 {
		return ctx.Err()
	}
	sleep := l.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	return sleep(ctx, d)
}
