package trigger

import (
	"bufio"
	"fmt"
	"net"
	"time"
)

// Send delivers one trigger request to a running controller and returns
// its acknowledgement. timeout bounds the whole exchange.
func Send(addr string, req Request, timeout time.Duration) (Ack, error) {
	if addr == "" {
		addr = DefaultAddr
	}
	if timeout <= 0 {
		timeout = readTimeout
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return Ack{}, fmt.Errorf("connect to controller at %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	payload, err := json.Marshal(req)
	if err != nil {
		return Ack{}, fmt.Errorf("encode trigger request: %w", err)
	}
	payload = append(payload, '\n')
	if _, err := conn.Write(payload); err != nil {
		return Ack{}, fmt.Errorf("send trigger request: %w", err)
	}

	line, err := bufio.NewReaderSize(conn, maxLine).ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return Ack{}, fmt.Errorf("read trigger ack: %w", err)
	}

	var ack Ack
	if err := json.Unmarshal(line, &ack); err != nil {
		return Ack{}, fmt.Errorf("decode trigger ack: %w", err)
	}
	return ack, nil
}
