package pace

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/drover-io/drover/log"
	"github.com/drover-io/drover/types"
)

// recordingSleep captures requested delays without sleeping.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) fn(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func TestRetryPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	sleep := &recordingSleep{}
	policy := RetryPolicy{
		MaxAttempts:   3,
		BackoffFactor: time.Second,
		Sleep:         sleep.fn,
	}

	calls := 0
	err := policy.Run(t.Context(), func(context.Context) error {
		calls++
		if calls < 3 {
			return types.NewTaskError(types.CodeTimeout, "transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run = %v, want success on third attempt", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(sleep.delays) != 2 {
		t.Fatalf("slept %d times, want 2", len(sleep.delays))
	}

	// Delays follow backoff_factor * 2^n with ±20% jitter.
	bounds := []time.Duration{time.Second, 2 * time.Second}
	for i, base := range bounds {
		low := time.Duration(float64(base) * 0.8)
		high := time.Duration(float64(base) * 1.2)
		if sleep.delays[i] < low || sleep.delays[i] > high {
			t.Errorf("delay[%d] = %v, want within [%v, %v]", i, sleep.delays[i], low, high)
		}
	}
}

func TestRetryPolicy_ExhaustsAttempts(t *testing.T) {
	sleep := &recordingSleep{}
	policy := RetryPolicy{
		MaxAttempts:   3,
		BackoffFactor: time.Millisecond,
		Sleep:         sleep.fn,
		Logger:        log.NewNop(),
	}

	calls := 0
	wantErr := types.NewTaskError(types.CodeExecutionError, "still broken")
	err := policy.Run(t.Context(), func(context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Run = %v, want last error returned", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want exactly MaxAttempts", calls)
	}
}

func TestRetryPolicy_ConfigErrorNeverRetried(t *testing.T) {
	policy := DefaultRetryPolicy(log.NewNop())
	policy.Sleep = func(context.Context, time.Duration) error {
		t.Fatal("slept before a non-retryable failure")
		return nil
	}

	calls := 0
	err := policy.Run(t.Context(), func(context.Context) error {
		calls++
		return types.NewTaskError(types.CodeConfigError, "bad selector config")
	})
	if types.CodeOf(err) != types.CodeConfigError {
		t.Fatalf("Run = %v, want CONFIG_ERROR", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retries)", calls)
	}
}

func TestRetryPolicy_OnRetryObserved(t *testing.T) {
	sleep := &recordingSleep{}
	var attempts []int
	policy := RetryPolicy{
		MaxAttempts:   3,
		BackoffFactor: time.Millisecond,
		Sleep:         sleep.fn,
		OnRetry:       func(attempt int, _ error) { attempts = append(attempts, attempt) },
	}

	_ = policy.Run(t.Context(), func(context.Context) error {
		return types.NewTaskError(types.CodeTimeout, "transient")
	})
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", attempts)
	}
}

func TestRetryPolicy_CanceledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	policy := RetryPolicy{
		MaxAttempts:   5,
		BackoffFactor: time.Millisecond,
		Sleep:         Sleep,
	}

	calls := 0
	err := policy.Run(ctx, func(context.Context) error {
		calls++
		cancel()
		return types.NewTaskError(types.CodeTimeout, "transient")
	})
	if err == nil {
		t.Fatal("Run = nil, want error after cancellation")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 after cancellation", calls)
	}
}

func TestJitter_Bounds(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	base := time.Second
	for range 100 {
		d := jitter(base, 0.2, r)
		if d < 800*time.Millisecond || d > 1200*time.Millisecond {
			t.Fatalf("jitter = %v, want within [800ms, 1.2s]", d)
		}
	}
}
