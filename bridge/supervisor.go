package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/drover-io/drover/log"
	"github.com/drover-io/drover/metrics"
	"github.com/drover-io/drover/pace"
	"github.com/drover-io/drover/types"
)

// Supervisor defaults, preserved from the observed deployment as
// configurable parameters rather than hard invariants.
const (
	// DefaultHeartbeatInterval is the time between liveness probes.
	DefaultHeartbeatInterval = 20 * time.Second
	// DefaultHeartbeatTimeout bounds one ping round-trip.
	DefaultHeartbeatTimeout = 5 * time.Second
	// DefaultBackoffCap caps the reconnect delay.
	DefaultBackoffCap = 16 * time.Second
	// DefaultAttemptCycle is how many failed connect attempts grow the
	// backoff before the attempt counter wraps back to zero.
	DefaultAttemptCycle = 5
)

// Backoff computes the reconnect delay for a failed attempt:
// min(2^attempt seconds, cap). Attempt starts at 0, so the sequence is
// 1, 2, 4, 8, 16 with the default cap.
func Backoff(attempt int, limit time.Duration) time.Duration {
	if attempt > 30 {
		return limit
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > limit {
		return limit
	}
	return d
}

// SupervisorConfig configures a connection supervisor.
type SupervisorConfig struct {
	// Dial opens the channel; required.
	Dial Dialer
	// HeartbeatInterval is the time between pings (default 20s).
	HeartbeatInterval time.Duration
	// HeartbeatTimeout bounds a ping round-trip (default 5s).
	HeartbeatTimeout time.Duration
	// BackoffCap caps the reconnect delay (default 16s).
	BackoffCap time.Duration
	// AttemptCycle wraps the backoff attempt counter (default 5).
	AttemptCycle int
	// Sleep is the suspend function; nil means real sleeping.
	Sleep pace.SleepFunc
	// Logger is required.
	Logger *log.Logger
	// Collector receives connection counters; may be nil.
	Collector *metrics.Collector
	// OnStateChange, when set, observes every transition.
	OnStateChange func(from, to types.ConnectionState)
}

// Supervisor keeps the executor channel alive: it connects, monitors
// health with periodic heartbeats, and reconnects with bounded
// exponential backoff. It never gives up while the process runs, unless
// the dialer reports the channel unrecoverable.
//
// State machine: Disconnected -> Connecting -> Connected <-> Degraded,
// with any connected state falling back to Disconnected on closure or
// two consecutive heartbeat misses.
type Supervisor struct {
	cfg SupervisorConfig

	mu     sync.Mutex
	state  types.ConnectionState
	bridge *Bridge

	// incoming fans in unsolicited messages across reconnects so
	// consumers hold one stable channel.
	incoming chan map[string]any
}

// NewSupervisor creates a supervisor in the Disconnected state.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = DefaultBackoffCap
	}
	if cfg.AttemptCycle <= 0 {
		cfg.AttemptCycle = DefaultAttemptCycle
	}
	if cfg.Sleep == nil {
		cfg.Sleep = pace.Sleep
	}
	return &Supervisor{
		cfg:      cfg,
		state:    types.StateDisconnected,
		incoming: make(chan map[string]any, incomingBuffer),
	}
}

// State returns the current connection state.
func (s *Supervisor) State() types.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Bridge returns the current bridge, or nil while disconnected.
func (s *Supervisor) Bridge() *Bridge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bridge
}

// Incoming returns unsolicited browser messages across reconnects.
func (s *Supervisor) Incoming() <-chan map[string]any {
	return s.incoming
}

// Do forwards a command to the current bridge. While disconnected it
// fails immediately with CHANNEL_CLOSED so callers hit the retry policy
// instead of hanging. This gives task code one stable command surface
// across reconnects.
func (s *Supervisor) Do(ctx context.Context, action types.Action, params map[string]any, timeout time.Duration) (*types.Result, error) {
	b := s.Bridge()
	if b == nil {
		return nil, types.NewTaskError(types.CodeChannelClosed, "executor channel is not connected")
	}
	return b.Do(ctx, action, params, timeout)
}

// Run drives the connect/monitor/reconnect cycle until ctx is canceled
// or the dialer reports the channel unrecoverable.
func (s *Supervisor) Run(ctx context.Context) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.setState(types.StateConnecting)
		channel, err := s.cfg.Dial(ctx)
		if err != nil {
			s.setState(types.StateDisconnected)
			if errors.Is(err, ErrUnrecoverable) {
				return err
			}

			delay := Backoff(attempt, s.cfg.BackoffCap)
			s.cfg.Logger.Warn("connect failed, backing off", map[string]any{
				"attempt": attempt,
				"delay":   delay.String(),
				"error":   err.Error(),
			})
			s.cfg.Collector.IncReconnects()

			attempt++
			if attempt >= s.cfg.AttemptCycle {
				attempt = 0
			}
			if err := s.cfg.Sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}
		attempt = 0

		b := New(channel, s.cfg.Logger, s.cfg.Collector)
		s.setBridge(b)
		s.setState(types.StateConnected)
		s.cfg.Logger.Info("channel connected", nil)

		go s.forwardIncoming(b)
		s.monitor(ctx, b)

		_ = b.Close()
		<-b.Done()
		s.setBridge(nil)
		s.setState(types.StateDisconnected)
		s.cfg.Logger.Warn("channel disconnected", nil)
	}
}

// monitor runs the heartbeat loop for one connected bridge. Returns when
// the bridge dies, two consecutive heartbeats miss, or ctx is canceled.
//
// A heartbeat is itself a Command/Result pair through the bridge and
// shares its timeout semantics. Silent channel failure (half-open
// connection) surfaces here as a missed round-trip.
func (s *Supervisor) monitor(ctx context.Context, b *Bridge) {
	misses := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.Done():
			return
		default:
		}

		if err := s.cfg.Sleep(ctx, s.cfg.HeartbeatInterval); err != nil {
			return
		}

		hbCtx, cancel := context.WithCancel(ctx)
		_, err := b.Do(hbCtx, types.ActionPing, nil, s.cfg.HeartbeatTimeout)
		cancel()

		if err == nil {
			if misses > 0 {
				s.setState(types.StateConnected)
			}
			misses = 0
			continue
		}

		if types.CodeOf(err) == types.CodeChannelClosed {
			return
		}

		misses++
		s.cfg.Collector.IncHeartbeatMisses()
		s.cfg.Logger.Warn("heartbeat missed", map[string]any{
			"misses": misses,
			"error":  err.Error(),
		})
		if misses == 1 {
			s.setState(types.StateDegraded)
			continue
		}
		// Two consecutive misses: declare the channel dead.
		return
	}
}

// forwardIncoming drains one bridge's unsolicited queue into the
// supervisor-stable queue until the bridge dies.
func (s *Supervisor) forwardIncoming(b *Bridge) {
	for {
		select {
		case <-b.Done():
			return
		case msg := <-b.Incoming():
			select {
			case s.incoming <- msg:
			default:
				s.cfg.Logger.Warn("incoming queue full, dropping message", nil)
			}
		}
	}
}

func (s *Supervisor) setState(next types.ConnectionState) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()

	if prev != next && s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(prev, next)
	}
}

func (s *Supervisor) setBridge(b *Bridge) {
	s.mu.Lock()
	s.bridge = b
	s.mu.Unlock()
}
