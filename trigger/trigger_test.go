package trigger

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/drover-io/drover/log"
)

func startTestServer(t *testing.T, handler Handler) string {
	t.Helper()
	s := NewServer("127.0.0.1:0", handler, log.NewNop())
	if err := s.Start(t.Context()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s.Addr()
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{name: "start_task with platform", req: Request{Action: ActionStartTask, Platform: "duckduckgo"}},
		{name: "start_task without platform", req: Request{Action: ActionStartTask}, wantErr: true},
		{name: "ping", req: Request{Action: ActionPing}},
		{name: "list_platforms", req: Request{Action: ActionListPlatforms}},
		{name: "unknown action", req: Request{Action: "restart"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%+v) = %v, wantErr %v", tt.req, err, tt.wantErr)
			}
		})
	}
}

func TestSendAndServe_RoundTrip(t *testing.T) {
	var received Request
	addr := startTestServer(t, func(_ context.Context, req Request) Ack {
		received = req
		return OK("task queued")
	})

	ack, err := Send(addr, Request{Action: ActionStartTask, Platform: "duckduckgo", Query: "golang"}, time.Second)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if ack.Status != "ok" || ack.Message != "task queued" {
		t.Errorf("ack = %+v, want ok with handler message", ack)
	}
	if received.Platform != "duckduckgo" || received.Query != "golang" {
		t.Errorf("handler saw %+v, want the sent request", received)
	}
}

func TestServer_ListPlatformsAck(t *testing.T) {
	addr := startTestServer(t, func(_ context.Context, req Request) Ack {
		if req.Action != ActionListPlatforms {
			return Error("unexpected action")
		}
		return Ack{Status: "ok", Platforms: []string{"duckduckgo", "news"}}
	})

	ack, err := Send(addr, Request{Action: ActionListPlatforms}, time.Second)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(ack.Platforms) != 2 || ack.Platforms[0] != "duckduckgo" {
		t.Errorf("ack.Platforms = %v, want [duckduckgo news]", ack.Platforms)
	}
}

func TestServer_RejectsInvalidRequests(t *testing.T) {
	addr := startTestServer(t, func(context.Context, Request) Ack {
		t.Error("handler called for an invalid request")
		return OK("")
	})

	ack, err := Send(addr, Request{Action: "restart"}, time.Second)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if ack.Status != "error" {
		t.Errorf("ack = %+v, want error for unknown action", ack)
	}

	ack, err = Send(addr, Request{Action: ActionStartTask}, time.Second)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if ack.Status != "error" {
		t.Errorf("ack = %+v, want error for start_task without platform", ack)
	}
}

func TestServer_RejectsMalformedJSON(t *testing.T) {
	addr := startTestServer(t, func(context.Context, Request) Ack {
		t.Error("handler called for malformed JSON")
		return OK("")
	})

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.Write([]byte("{not json\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	buf := make([]byte, maxLine)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	var ack Ack
	if err := json.Unmarshal(buf[:n], &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Status != "error" {
		t.Errorf("ack = %+v, want error for malformed JSON", ack)
	}
}

func TestSend_ConnectFailure(t *testing.T) {
	if _, err := Send("127.0.0.1:1", Request{Action: ActionPing}, 200*time.Millisecond); err == nil {
		t.Error("Send = nil, want connect error with no listener")
	}
}
