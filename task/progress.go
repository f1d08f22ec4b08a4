package task

import (
	"github.com/drover-io/drover/log"
	"github.com/drover-io/drover/storage"
)

// ProgressTracker emits traversal progress events to the structured log
// and, when a result log is attached, as progress records.
type ProgressTracker struct {
	platform  string
	logger    *log.Logger
	resultLog *storage.Log
}

// NewProgressTracker creates a tracker. resultLog may be nil.
func NewProgressTracker(platform string, logger *log.Logger, resultLog *storage.Log) *ProgressTracker {
	return &ProgressTracker{platform: platform, logger: logger, resultLog: resultLog}
}

// Emit records one progress event. Record-append failures are logged
// and swallowed: progress is advisory and must never fail a run.
func (t *ProgressTracker) Emit(event string, data map[string]any) {
	fields := make(map[string]any, len(data)+1)
	for k, v := range data {
		fields[k] = v
	}
	fields["event"] = event
	t.logger.Info("progress", fields)

	if t.resultLog == nil {
		return
	}
	if err := t.resultLog.AppendProgress(t.platform, event, data); err != nil {
		t.logger.Warn("progress record append failed", map[string]any{
			"event": event,
			"error": err.Error(),
		})
	}
}
