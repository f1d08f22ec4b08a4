// Package bridge turns the byte-oriented executor channel into a
// request/response API safe for concurrent callers, and supervises the
// channel's lifecycle.
package bridge

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drover-io/drover/ipc"
	"github.com/drover-io/drover/log"
	"github.com/drover-io/drover/metrics"
	"github.com/drover-io/drover/types"
)

// commandIDs assigns correlation ids. Package-level so ids stay unique
// for the process lifetime even across reconnected bridges.
var commandIDs atomic.Int64

// nextCommandID returns the next correlation id.
func nextCommandID() int64 {
	return commandIDs.Add(1)
}

// incomingBuffer bounds the unsolicited-message queue. The reader loop
// must never block on a slow consumer, so overflow drops with a warning.
const incomingBuffer = 64

// ErrClosed is returned by Send once the channel is gone.
var ErrClosed = errors.New("bridge: channel closed")

// Bridge correlates commands with results over one duplex channel.
//
// One background reader goroutine owns the inbound stream. The
// pending-waiter table is guarded by a mutex held only for table
// operations, never across a blocking wait, so the reader is never
// blocked by a slow waiter.
type Bridge struct {
	enc    *ipc.Encoder
	closer io.Closer

	// writeMu serializes outbound frames.
	writeMu sync.Mutex

	// mu guards pending and closed.
	mu      sync.Mutex
	pending map[int64]chan *types.Result
	closed  bool

	incoming chan map[string]any
	done     chan struct{}

	logger    *log.Logger
	collector *metrics.Collector
}

// New creates a bridge over the given channel and starts its reader loop.
func New(channel io.ReadWriteCloser, logger *log.Logger, collector *metrics.Collector) *Bridge {
	b := &Bridge{
		enc:       ipc.NewEncoder(channel),
		closer:    channel,
		pending:   make(map[int64]chan *types.Result),
		incoming:  make(chan map[string]any, incomingBuffer),
		done:      make(chan struct{}),
		logger:    logger,
		collector: collector,
	}
	go b.readLoop(ipc.NewDecoder(channel))
	return b
}

// Send assigns a correlation id, writes the command frame, and returns
// the id immediately without waiting for the result.
//
// The waiter slot is registered before the frame is written so a result
// can never arrive before its slot exists.
func (b *Bridge) Send(action types.Action, params map[string]any) (int64, error) {
	id := nextCommandID()
	cmd := &types.Command{ID: id, Action: action, Params: params}

	ch := make(chan *types.Result, 1)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, ErrClosed
	}
	b.pending[id] = ch
	b.mu.Unlock()

	b.writeMu.Lock()
	err := b.enc.WriteCommand(cmd)
	b.writeMu.Unlock()

	if err != nil {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
		return 0, types.WrapTaskError(types.CodeChannelClosed, err, "write command frame")
	}

	b.collector.IncCommandsSent()
	b.logger.Debug("command sent", map[string]any{
		"id":     id,
		"action": string(action),
	})
	return id, nil
}

// Await blocks the calling goroutine until the result for id arrives,
// the timeout elapses, or ctx is canceled. On timeout it returns a
// synthetic TIMEOUT error result and deregisters the waiter; the real
// result is discarded if it arrives later.
func (b *Bridge) Await(ctx context.Context, id int64, timeout time.Duration) *types.Result {
	b.mu.Lock()
	ch, ok := b.pending[id]
	b.mu.Unlock()
	if !ok {
		// Unknown or already-resolved id. A Command id is issued at most
		// once, so this is a caller bug rather than a transport state.
		return &types.Result{
			ID:      id,
			Status:  types.StatusError,
			Code:    types.CodeExecutionError,
			Message: "no pending command with this id",
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-ch:
		b.abandon(id)
		return result
	case <-timer.C:
		b.abandon(id)
		b.collector.IncTimeouts()
		b.logger.Warn("timed out waiting for result", map[string]any{
			"id":      id,
			"timeout": timeout.String(),
		})
		return &types.Result{
			ID:      id,
			Status:  types.StatusError,
			Code:    types.CodeTimeout,
			Message: "timed out waiting for result",
		}
	case <-ctx.Done():
		b.abandon(id)
		return &types.Result{
			ID:      id,
			Status:  types.StatusError,
			Code:    types.CodeTimeout,
			Message: ctx.Err().Error(),
		}
	}
}

// Do sends a command and waits for its result. An error-status result
// is converted into a classified error; the result is returned in both
// cases for callers that inspect payloads.
func (b *Bridge) Do(ctx context.Context, action types.Action, params map[string]any, timeout time.Duration) (*types.Result, error) {
	id, err := b.Send(action, params)
	if err != nil {
		return nil, err
	}
	result := b.Await(ctx, id, timeout)
	return result, result.Err()
}

// Incoming returns the queue of unsolicited messages pushed by the
// browser side (frames without an id). Consumed by the dispatch loop.
func (b *Bridge) Incoming() <-chan map[string]any {
	return b.incoming
}

// Done is closed when the reader loop exits, i.e. the channel is gone.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Close tears down the channel. Pending waiters resolve with
// CHANNEL_CLOSED via the reader loop exit.
func (b *Bridge) Close() error {
	return b.closer.Close()
}

// abandon removes the waiter for id so a late result is discarded
// instead of being delivered retroactively.
func (b *Bridge) abandon(id int64) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// readLoop continuously reads inbound frames and routes them.
// Results wake exactly the waiter registered for their id; frames
// without an id go to the unsolicited queue.
func (b *Bridge) readLoop(dec *ipc.Decoder) {
	defer b.failPending()

	for {
		payload, err := dec.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				b.logger.Warn("channel read failed", map[string]any{
					"error": err.Error(),
				})
			}
			return
		}

		decoded, err := ipc.DecodeFrame(payload)
		if err != nil {
			// Malformed JSON inside a well-framed payload is recoverable;
			// the stream stays synchronized.
			b.logger.Warn("dropping undecodable frame", map[string]any{
				"error": err.Error(),
			})
			continue
		}

		switch frame := decoded.(type) {
		case *types.Result:
			b.route(frame)
		case map[string]any:
			select {
			case b.incoming <- frame:
			default:
				b.logger.Warn("incoming queue full, dropping message", nil)
			}
		}
	}
}

// route delivers a result to its waiter, or discards it if the waiter
// already gave up. The waiter slot stays registered until Await
// consumes the result, so a result landing before Await is called is
// held in the slot's buffer rather than lost.
func (b *Bridge) route(result *types.Result) {
	b.mu.Lock()
	ch, ok := b.pending[result.ID]
	b.mu.Unlock()

	if !ok {
		b.collector.IncResultsDiscarded()
		b.logger.Debug("discarding late result", map[string]any{
			"id": result.ID,
		})
		return
	}

	select {
	case ch <- result:
		b.collector.IncResultsReceived()
	default:
		// A second result for an id whose first result is still
		// buffered. The executor sends at most one result per command,
		// so keep the first and drop the duplicate.
		b.collector.IncResultsDiscarded()
		b.logger.Debug("discarding duplicate result", map[string]any{
			"id": result.ID,
		})
	}
}

// failPending resolves every pending waiter with CHANNEL_CLOSED so no
// caller hangs forever on a dead channel. Slots stay registered so an
// Await issued after closure still resolves; a real result already
// buffered in a slot wins over the synthetic error.
func (b *Bridge) failPending() {
	b.mu.Lock()
	b.closed = true
	waiters := make(map[int64]chan *types.Result, len(b.pending))
	for id, ch := range b.pending {
		waiters[id] = ch
	}
	b.mu.Unlock()

	for id, ch := range waiters {
		select {
		case ch <- &types.Result{
			ID:      id,
			Status:  types.StatusError,
			Code:    types.CodeChannelClosed,
			Message: "channel closed with command pending",
		}:
		default:
		}
	}

	close(b.done)
}
