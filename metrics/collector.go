// Package metrics provides per-run metrics collection.
//
// The Collector accumulates counters during a single run. It is a leaf
// package with no internal dependencies. All increment methods are
// nil-receiver safe so call sites never need to guard against a missing
// collector.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of run counters.
// Safe to read concurrently after creation.
type Snapshot struct {
	// Bridge
	CommandsSent     int64
	ResultsReceived  int64
	ResultsDiscarded int64
	Timeouts         int64

	// Connection
	Reconnects      int64
	HeartbeatMisses int64

	// Task
	Retries        int64
	ItemsCollected int64
	PagesVisited   int64

	// Dimensions (informational, set at construction)
	Platform string
	RunID    string
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex.
type Collector struct {
	mu sync.Mutex

	commandsSent     int64
	resultsReceived  int64
	resultsDiscarded int64
	timeouts         int64

	reconnects      int64
	heartbeatMisses int64

	retries        int64
	itemsCollected int64
	pagesVisited   int64

	platform string
	runID    string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(platform, runID string) *Collector {
	return &Collector{platform: platform, runID: runID}
}

func (c *Collector) inc(field *int64, n int64) {
	c.mu.Lock()
	*field += n
	c.mu.Unlock()
}

// IncCommandsSent counts a command written to the channel.
func (c *Collector) IncCommandsSent() {
	if c == nil {
		return
	}
	c.inc(&c.commandsSent, 1)
}

// IncResultsReceived counts a result routed to a waiter.
func (c *Collector) IncResultsReceived() {
	if c == nil {
		return
	}
	c.inc(&c.resultsReceived, 1)
}

// IncResultsDiscarded counts a result that arrived after its waiter gave up.
func (c *Collector) IncResultsDiscarded() {
	if c == nil {
		return
	}
	c.inc(&c.resultsDiscarded, 1)
}

// IncTimeouts counts a waiter resolved by timeout.
func (c *Collector) IncTimeouts() {
	if c == nil {
		return
	}
	c.inc(&c.timeouts, 1)
}

// IncReconnects counts a supervisor reconnect attempt.
func (c *Collector) IncReconnects() {
	if c == nil {
		return
	}
	c.inc(&c.reconnects, 1)
}

// IncHeartbeatMisses counts a heartbeat round-trip that missed its deadline.
func (c *Collector) IncHeartbeatMisses() {
	if c == nil {
		return
	}
	c.inc(&c.heartbeatMisses, 1)
}

// IncRetries counts a retried action.
func (c *Collector) IncRetries() {
	if c == nil {
		return
	}
	c.inc(&c.retries, 1)
}

// AddItems counts items fed to the sink.
func (c *Collector) AddItems(n int) {
	if c == nil {
		return
	}
	c.inc(&c.itemsCollected, int64(n))
}

// IncPagesVisited counts a page the traversal visited.
func (c *Collector) IncPagesVisited() {
	if c == nil {
		return
	}
	c.inc(&c.pagesVisited, 1)
}

// Snapshot returns a consistent copy of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		CommandsSent:     c.commandsSent,
		ResultsReceived:  c.resultsReceived,
		ResultsDiscarded: c.resultsDiscarded,
		Timeouts:         c.timeouts,
		Reconnects:       c.reconnects,
		HeartbeatMisses:  c.heartbeatMisses,
		Retries:          c.retries,
		ItemsCollected:   c.itemsCollected,
		PagesVisited:     c.pagesVisited,
		Platform:         c.platform,
		RunID:            c.runID,
	}
}
