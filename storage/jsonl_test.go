package storage

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func readRecords(t *testing.T, path string) []Record {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer func() { _ = f.Close() }()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("decode line %d: %v", len(records)+1, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan log: %v", err)
	}
	return records
}

func TestTimestampedPath_Format(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	got := TimestampedPath("output/results", "duckduckgo", now)
	want := filepath.Join("output/results", "duckduckgo_20260314_092653.jsonl")
	if got != want {
		t.Errorf("TimestampedPath = %q, want %q", got, want)
	}
}

func TestLog_AppendAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "duckduckgo.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := l.AppendItem("duckduckgo", map[string]any{"title": "Go", "url": "https://go.dev"}); err != nil {
		t.Fatalf("AppendItem failed: %v", err)
	}
	if err := l.AppendProgress("duckduckgo", "page_progress", map[string]any{"current_page": float64(2)}); err != nil {
		t.Fatalf("AppendProgress failed: %v", err)
	}
	if err := l.AppendError("duckduckgo", "TIMEOUT", "extract timed out"); err != nil {
		t.Fatalf("AppendError failed: %v", err)
	}
	if err := l.AppendSummary("duckduckgo", map[string]any{"total_items": float64(1)}); err != nil {
		t.Fatalf("AppendSummary failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	records := readRecords(t, path)
	if len(records) != 4 {
		t.Fatalf("read %d records, want 4", len(records))
	}

	wantStatus := []string{RecordItem, RecordProgress, RecordError, RecordSummary}
	for i, status := range wantStatus {
		if records[i].Status != status {
			t.Errorf("record[%d].Status = %q, want %q", i, records[i].Status, status)
		}
		if records[i].Platform != "duckduckgo" {
			t.Errorf("record[%d].Platform = %q, want duckduckgo", i, records[i].Platform)
		}
		if records[i].Timestamp == "" {
			t.Errorf("record[%d] missing timestamp", i)
		}
	}

	if records[0].Data["title"] != "Go" {
		t.Errorf("item data = %v, want title Go", records[0].Data)
	}
	if records[1].Data["event_type"] != "page_progress" || records[1].Data["current_page"] != float64(2) {
		t.Errorf("progress data = %v, want event_type and event fields merged", records[1].Data)
	}
	if records[2].Error == nil || records[2].Error.Code != "TIMEOUT" {
		t.Errorf("error record = %+v, want code TIMEOUT", records[2].Error)
	}
	if records[3].Data["total_items"] != float64(1) {
		t.Errorf("summary data = %v, want total_items 1", records[3].Data)
	}
}

func TestLog_ReopenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := l.AppendItem("p", map[string]any{"n": float64(1)}); err != nil {
		t.Fatalf("AppendItem failed: %v", err)
	}
	_ = l.Close()

	l, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if err := l.AppendItem("p", map[string]any{"n": float64(2)}); err != nil {
		t.Fatalf("AppendItem after reopen failed: %v", err)
	}
	_ = l.Close()

	records := readRecords(t, path)
	if len(records) != 2 {
		t.Fatalf("read %d records after reopen, want 2", len(records))
	}
	if records[1].Data["n"] != float64(2) {
		t.Errorf("second record = %v, want n=2", records[1].Data)
	}
}
