package redis

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/drover-io/drover/adapter"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New = nil, want error for empty URL")
	}
	if _, err := New(Config{URL: "not-a-redis-url"}); err == nil {
		t.Error("New = nil, want error for invalid URL")
	}
}

func TestNew_DefaultChannel(t *testing.T) {
	a, err := New(Config{URL: "redis://127.0.0.1:6379"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = a.Close() }()
	if a.config.Channel != DefaultChannel {
		t.Errorf("channel = %q, want %q", a.config.Channel, DefaultChannel)
	}
}

func TestPublish_DeliversEventToSubscriber(t *testing.T) {
	srv := miniredis.RunT(t)

	sub := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	defer func() { _ = sub.Close() }()

	ctx := t.Context()
	ps := sub.Subscribe(ctx, "drover:task_completed")
	defer func() { _ = ps.Close() }()
	if _, err := ps.Receive(ctx); err != nil {
		t.Fatalf("confirm subscription: %v", err)
	}

	a, err := New(Config{URL: "redis://" + srv.Addr()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = a.Close() }()

	event := &adapter.TaskCompletedEvent{
		ContractVersion: "1.0",
		EventType:       "task_completed",
		RunID:           "run-1",
		Platform:        "duckduckgo",
		Outcome:         "error",
		ErrorCode:       "TIMEOUT",
	}
	if err := a.Publish(ctx, event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-ps.Channel():
		var got adapter.TaskCompletedEvent
		if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if got.RunID != "run-1" || got.ErrorCode != "TIMEOUT" {
			t.Errorf("received event = %+v, want published payload", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestPublish_FailsWhenServerGone(t *testing.T) {
	srv := miniredis.RunT(t)
	a, err := New(Config{URL: "redis://" + srv.Addr(), Retries: 0, Timeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = a.Close() }()

	srv.Close()

	if err := a.Publish(t.Context(), &adapter.TaskCompletedEvent{RunID: "run-1"}); err == nil {
		t.Error("Publish = nil, want error with server down")
	}
}
