package types

import (
	"encoding/json"
	"time"
)

// OutcomeStatus is the final status of one task run.
type OutcomeStatus string

const (
	// OutcomeSuccess indicates the run completed its traversal.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeError indicates the run failed after exhausting recovery.
	// Items collected before the failure are still present in the outcome.
	OutcomeError OutcomeStatus = "error"
)

// Performance captures run-level performance figures. Duration is kept
// as a time.Duration in memory and crosses serialization boundaries in
// whole milliseconds, matching the duration_ms fields everywhere else
// in the result contract.
type Performance struct {
	Duration time.Duration `json:"-" yaml:"-"`
	Retries  int           `json:"retries"`
}

// performanceWire is the serialized shape of Performance.
type performanceWire struct {
	DurationMs int64 `json:"duration_ms" yaml:"duration_ms"`
	Retries    int   `json:"retries" yaml:"retries"`
}

// MarshalJSON implements json.Marshaler.
func (p Performance) MarshalJSON() ([]byte, error) {
	return json.Marshal(performanceWire{
		DurationMs: p.Duration.Milliseconds(),
		Retries:    p.Retries,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Performance) UnmarshalJSON(data []byte) error {
	var wire performanceWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	p.Duration = time.Duration(wire.DurationMs) * time.Millisecond
	p.Retries = wire.Retries
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (p Performance) MarshalYAML() (any, error) {
	return performanceWire{
		DurationMs: p.Duration.Milliseconds(),
		Retries:    p.Retries,
	}, nil
}

// OutcomeFailure describes the failure that ended an error run.
type OutcomeFailure struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// TaskOutcome is the standardized record returned by every task run.
// A failed run still carries whatever items were collected before the
// failure (partial-result guarantee).
type TaskOutcome struct {
	// Status is success or error.
	Status OutcomeStatus `json:"status"`
	// Platform is the target site the task ran against.
	Platform string `json:"platform"`
	// RunID is the unique identifier of this run.
	RunID string `json:"run_id"`
	// Items is the ordered sequence of collected items.
	Items []map[string]any `json:"items"`
	// PagesProcessed counts pages the traversal visited.
	PagesProcessed int `json:"pages_processed"`
	// Performance holds duration and retry counts.
	Performance Performance `json:"performance"`
	// Failure is set when Status is error.
	Failure *OutcomeFailure `json:"error,omitempty"`
}

// Failed returns an error outcome preserving already-collected items.
func Failed(platform, runID string, items []map[string]any, pages int, code ErrorCode, message string) *TaskOutcome {
	return &TaskOutcome{
		Status:         OutcomeError,
		Platform:       platform,
		RunID:          runID,
		Items:          items,
		PagesProcessed: pages,
		Failure:        &OutcomeFailure{Code: code, Message: message},
	}
}
