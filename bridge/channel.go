package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
)

// Dialer opens the duplex channel to the browser executor.
// The supervisor calls it on every (re)connect attempt.
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

// ErrUnrecoverable signals that the channel can never be reopened.
// The supervisor stops its reconnect cycle when a dial returns it.
var ErrUnrecoverable = errors.New("bridge: channel cannot be reopened")

// stdioChannel is the native-messaging transport: the browser launched
// this process and owns the other end of stdin/stdout.
type stdioChannel struct {
	in  io.ReadCloser
	out io.WriteCloser
}

func (c *stdioChannel) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c *stdioChannel) Write(p []byte) (int, error) { return c.out.Write(p) }

func (c *stdioChannel) Close() error {
	// Closing stdout signals the browser the host is going away.
	errIn := c.in.Close()
	errOut := c.out.Close()
	if errOut != nil {
		return errOut
	}
	return errIn
}

// StdioDialer returns a dialer handing out the process stdio exactly
// once. The browser relaunches the host itself, so a lost stdio channel
// is unrecoverable from inside this process.
func StdioDialer() Dialer {
	var mu sync.Mutex
	used := false
	return func(_ context.Context) (io.ReadWriteCloser, error) {
		mu.Lock()
		defer mu.Unlock()
		if used {
			return nil, ErrUnrecoverable
		}
		used = true
		return &stdioChannel{in: os.Stdin, out: os.Stdout}, nil
	}
}

// TCPDialer returns a dialer connecting to an executor socket.
// Unlike stdio this transport supports the full reconnect cycle.
func TCPDialer(addr string) Dialer {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		return conn, nil
	}
}
