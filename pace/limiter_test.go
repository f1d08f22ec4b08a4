package pace

import (
	"context"
	"math/rand"
	"testing"
	"time"
)

func TestRateLimiter_DelayWithoutJitterIsFixed(t *testing.T) {
	l := RateLimiter{BaseDelay: 500 * time.Millisecond}
	for range 5 {
		if got := l.Delay(); got != 500*time.Millisecond {
			t.Errorf("Delay = %v, want fixed 500ms", got)
		}
	}
}

func TestRateLimiter_JitteredDelayBounds(t *testing.T) {
	l := RateLimiter{
		BaseDelay: time.Second,
		Jitter:    true,
		Rand:      rand.New(rand.NewSource(42)),
	}
	for range 100 {
		d := l.Delay()
		if d < 800*time.Millisecond || d > 1200*time.Millisecond {
			t.Fatalf("Delay = %v, want within [0.8s, 1.2s]", d)
		}
	}
}

func TestRateLimiter_ZeroDelaySkipsSleep(t *testing.T) {
	slept := false
	l := RateLimiter{
		Sleep: func(context.Context, time.Duration) error {
			slept = true
			return nil
		},
	}
	if err := l.Wait(t.Context()); err != nil {
		t.Fatalf("Wait = %v, want nil", err)
	}
	if slept {
		t.Error("Wait slept with zero base delay")
	}
}

func TestRateLimiter_WaitHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	l := RateLimiter{BaseDelay: time.Hour}
	if err := l.Wait(ctx); err == nil {
		t.Error("Wait = nil, want context error")
	}
}
