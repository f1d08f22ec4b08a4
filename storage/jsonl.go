// Package storage implements the append-only JSONL result log and an
// optional archive of finished logs to S3-compatible object storage.
//
// The log is a sequence of JSON records, one per line, in four shapes:
// item, summary, error, and progress. Appending one item at a time keeps
// partial results recoverable: a run that dies mid-traversal leaves
// every item it collected on disk.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record statuses discriminating the four log record shapes.
const (
	RecordItem     = "item"
	RecordSummary  = "summary"
	RecordError    = "error"
	RecordProgress = "progress"
)

// Record is one result-log line.
type Record struct {
	Status    string         `json:"status"`
	Platform  string         `json:"platform"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
	Error     *RecordFailure `json:"error,omitempty"`
}

// RecordFailure is the error payload of an error record.
type RecordFailure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TimestampedPath builds the conventional log filename for a run:
// <dir>/<platform>_<YYYYMMDD_HHMMSS>.jsonl in UTC.
func TimestampedPath(dir, platform string, now time.Time) string {
	name := fmt.Sprintf("%s_%s.jsonl", platform, now.UTC().Format("20060102_150405"))
	return filepath.Join(dir, name)
}

// Log is an append-only JSONL result log. Safe for concurrent appends.
type Log struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// Open creates (or reopens for append) the log at path, creating parent
// directories as needed.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open result log: %w", err)
	}
	return &Log{path: path, file: file}, nil
}

// Path returns the log's file path.
func (l *Log) Path() string {
	return l.path
}

// AppendItem appends one collected item.
func (l *Log) AppendItem(platform string, data map[string]any) error {
	return l.append(Record{
		Status:   RecordItem,
		Platform: platform,
		Data:     data,
	})
}

// AppendSummary appends the run summary.
func (l *Log) AppendSummary(platform string, summary map[string]any) error {
	return l.append(Record{
		Status:   RecordSummary,
		Platform: platform,
		Data:     summary,
	})
}

// AppendError appends a failure record.
func (l *Log) AppendError(platform, code, message string) error {
	return l.append(Record{
		Status:   RecordError,
		Platform: platform,
		Error:    &RecordFailure{Code: code, Message: message},
	})
}

// AppendProgress appends a progress event. eventType lands in
// data.event_type next to the event's own fields.
func (l *Log) AppendProgress(platform, eventType string, data map[string]any) error {
	merged := make(map[string]any, len(data)+1)
	for k, v := range data {
		merged[k] = v
	}
	merged["event_type"] = eventType
	return l.append(Record{
		Status:   RecordProgress,
		Platform: platform,
		Data:     merged,
	})
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

func (l *Log) append(rec Record) error {
	rec.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode log record: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("append log record: %w", err)
	}
	return nil
}
