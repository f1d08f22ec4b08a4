package trigger

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/drover-io/drover/log"
)

var (
	errUnknownAction   = errors.New("unknown action")
	errMissingPlatform = errors.New("start_task requires a platform")
)

// readTimeout bounds how long a connection may take to deliver its
// request line.
const readTimeout = 5 * time.Second

// maxLine caps a request line. Triggers are tiny; anything bigger is a
// misdirected client.
const maxLine = 4 * 1024

// Handler processes a validated trigger request and returns the
// acknowledgement. Called from connection goroutines; implementations
// typically hand the work to the dispatch loop and acknowledge
// immediately.
type Handler func(ctx context.Context, req Request) Ack

// Server accepts trigger connections on a loopback address.
type Server struct {
	addr    string
	handler Handler
	logger  *log.Logger

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer creates a trigger server. addr defaults to DefaultAddr.
func NewServer(addr string, handler Handler, logger *log.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{addr: addr, handler: handler, logger: logger}
}

// Start binds the listener and begins accepting connections.
// Returns an error if the port is taken (another instance is likely
// alive; the PID lock should normally catch this first).
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("trigger server listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("trigger server listening", map[string]any{
		"addr": listener.Addr().String(),
	})

	s.wg.Add(1)
	go s.acceptLoop(ctx, listener)
	return nil
}

// Addr returns the bound address, empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops accepting and waits for in-flight connections.
func (s *Server) Close() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			// Listener closed on shutdown.
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// handleConn reads one request line, dispatches it, and writes the
// single acknowledgement.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(readTimeout))

	reader := bufio.NewReaderSize(conn, maxLine)
	line, err := reader.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		s.logger.Warn("trigger read failed", map[string]any{
			"remote": conn.RemoteAddr().String(),
			"error":  err.Error(),
		})
		s.respond(conn, Error("empty or unreadable request"))
		return
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.respond(conn, Error("invalid JSON request"))
		return
	}
	if err := req.Validate(); err != nil {
		s.respond(conn, Error(err.Error()))
		return
	}

	s.logger.Info("trigger received", map[string]any{
		"action":   req.Action,
		"platform": req.Platform,
	})

	s.respond(conn, s.handler(ctx, req))
}

func (s *Server) respond(conn net.Conn, ack Ack) {
	payload, err := json.Marshal(ack)
	if err != nil {
		return
	}
	payload = append(payload, '\n')
	if _, err := conn.Write(payload); err != nil {
		s.logger.Debug("trigger ack write failed", map[string]any{
			"error": err.Error(),
		})
	}
}
