// Package adapter defines the task-completion notification boundary.
//
// Adapters publish task completion events to downstream systems. The
// controller owns adapter lifecycle; users provide configuration only.
package adapter

import "context"

// TaskCompletedEvent is the payload published when a task run finishes.
type TaskCompletedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "task_completed"
	RunID           string `json:"run_id"`
	Platform        string `json:"platform"`
	Query           string `json:"query"`
	Outcome         string `json:"outcome"` // success or error
	ErrorCode       string `json:"error_code,omitempty"`
	ResultLog       string `json:"result_log"`
	Timestamp       string `json:"timestamp"` // ISO 8601
	ItemCount       int    `json:"item_count"`
	PagesProcessed  int    `json:"pages_processed"`
	DurationMs      int64  `json:"duration_ms"`
}

// Adapter publishes task completion events to a downstream system.
// Implementations must be safe for single-use per run.
type Adapter interface {
	// Publish sends a task completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *TaskCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
