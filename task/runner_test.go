package task

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/drover-io/drover/adapter"
	"github.com/drover-io/drover/cli/config"
	"github.com/drover-io/drover/log"
	"github.com/drover-io/drover/storage"
	"github.com/drover-io/drover/types"
)

// captureAdapter records published completion events.
type captureAdapter struct {
	events []*adapter.TaskCompletedEvent
}

func (a *captureAdapter) Publish(_ context.Context, event *adapter.TaskCompletedEvent) error {
	a.events = append(a.events, event)
	return nil
}

func (a *captureAdapter) Close() error { return nil }

func writePlatformConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write platform config: %v", err)
	}
}

func readLog(t *testing.T, dir string) []storage.Record {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("output dir holds %d files, want exactly one result log", len(entries))
	}

	f, err := os.Open(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("open result log: %v", err)
	}
	defer func() { _ = f.Close() }()

	var records []storage.Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec storage.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("decode log line: %v", err)
		}
		records = append(records, rec)
	}
	return records
}

func countByStatus(records []storage.Record) map[string]int {
	counts := make(map[string]int)
	for _, rec := range records {
		counts[rec.Status]++
	}
	return counts
}

func TestRunner_SuccessfulRun(t *testing.T) {
	configDir := t.TempDir()
	outputDir := t.TempDir()
	writePlatformConfig(t, configDir, "duckduckgo", `
base_url: https://duckduckgo.com
selectors:
  results_container: "article.result"
settings:
  iteration:
    type: pagination
    max_pages: 1
    max_items: 10
  rate_limiting:
    action_delay: 1ms
    page_load_delay: 1ms
  timeouts:
    command: 2s
    task_execution: 5s
`)

	cmd := newScriptedCommander()
	cmd.succeed(types.ActionNavigate)
	cmd.succeed(types.ActionWaitForSelector)
	cmd.on(types.ActionExtractPage, func(context.Context, map[string]any) (*types.Result, error) {
		return &types.Result{
			Status: types.StatusSuccess,
			Data: []any{
				map[string]any{"title": "Go", "url": "https://go.dev"},
				map[string]any{"title": "Gopher", "url": "https://go.dev/blog"},
			},
		}, nil
	})

	notify := &captureAdapter{}
	runner := NewRunner(RunnerConfig{
		Bridge:    cmd,
		ConfigDir: configDir,
		OutputDir: outputDir,
		Adapter:   notify,
		Logger:    log.NewNop(),
	})

	outcome, err := runner.Run(t.Context(), "duckduckgo", "golang")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if outcome.Status != types.OutcomeSuccess {
		t.Errorf("status = %v, want success", outcome.Status)
	}
	if len(outcome.Items) != 2 {
		t.Errorf("items = %d, want 2", len(outcome.Items))
	}
	if outcome.PagesProcessed != 1 {
		t.Errorf("pages = %d, want 1", outcome.PagesProcessed)
	}
	if outcome.RunID == "" {
		t.Error("outcome missing a run id")
	}

	records := readLog(t, outputDir)
	counts := countByStatus(records)
	if counts[storage.RecordItem] != 2 {
		t.Errorf("item records = %d, want 2", counts[storage.RecordItem])
	}
	if counts[storage.RecordSummary] != 1 {
		t.Errorf("summary records = %d, want 1", counts[storage.RecordSummary])
	}

	last := records[len(records)-1]
	if last.Status != storage.RecordSummary {
		t.Errorf("last record = %q, want the closing summary", last.Status)
	}
	if last.Data["total_items"] != float64(2) || last.Data["query"] != "golang" {
		t.Errorf("summary data = %v", last.Data)
	}

	if len(notify.events) != 1 {
		t.Fatalf("published %d events, want 1", len(notify.events))
	}
	event := notify.events[0]
	if event.Outcome != "success" || event.ItemCount != 2 || event.ContractVersion != EventContractVersion {
		t.Errorf("event = %+v", event)
	}
	if event.ResultLog == "" {
		t.Error("event missing result log path")
	}
}

func TestRunner_DeadlineReclassifiedAsTimeout(t *testing.T) {
	configDir := t.TempDir()
	outputDir := t.TempDir()
	writePlatformConfig(t, configDir, "slow", `
base_url: https://slow.example
selectors:
  results_container: "div.results"
  next_page_button: "a.next"
settings:
  iteration:
    type: pagination
    max_pages: 3
    max_items: 10
  rate_limiting:
    action_delay: 1ms
    page_load_delay: 1ms
  timeouts:
    command: 2s
    task_execution: 300ms
`)

	cmd := newScriptedCommander()
	cmd.succeed(types.ActionNavigate)
	cmd.succeed(types.ActionWaitForSelector)
	cmd.succeed(types.ActionClick)
	extracts := 0
	cmd.on(types.ActionExtractPage, func(ctx context.Context, _ map[string]any) (*types.Result, error) {
		extracts++
		if extracts == 1 {
			return &types.Result{
				Status: types.StatusSuccess,
				Data:   []any{map[string]any{"title": "partial"}},
			}, nil
		}
		// Hang until the run-wide deadline fires.
		<-ctx.Done()
		return nil, types.NewTaskError(types.CodeTimeout, "extract interrupted")
	})

	runner := NewRunner(RunnerConfig{
		Bridge:    cmd,
		ConfigDir: configDir,
		OutputDir: outputDir,
		Logger:    log.NewNop(),
	})

	outcome, err := runner.Run(t.Context(), "slow", "anything")
	if err == nil {
		t.Fatal("Run = nil, want deadline failure")
	}
	if types.CodeOf(err) != types.CodeTimeout {
		t.Errorf("err = %v, want TIMEOUT classification", err)
	}
	if outcome.Status != types.OutcomeError || outcome.Failure == nil {
		t.Fatalf("outcome = %+v, want error with failure detail", outcome)
	}
	if outcome.Failure.Code != types.CodeTimeout {
		t.Errorf("failure code = %v, want TIMEOUT", outcome.Failure.Code)
	}
	if len(outcome.Items) != 1 {
		t.Errorf("items = %d, want the page collected before the deadline", len(outcome.Items))
	}

	records := readLog(t, outputDir)
	counts := countByStatus(records)
	if counts[storage.RecordItem] != 1 {
		t.Errorf("item records = %d, want 1", counts[storage.RecordItem])
	}
	if counts[storage.RecordError] != 1 {
		t.Fatalf("error records = %d, want 1", counts[storage.RecordError])
	}
	last := records[len(records)-1]
	if last.Error == nil || last.Error.Code != string(types.CodeTimeout) {
		t.Errorf("closing record = %+v, want TIMEOUT error", last.Error)
	}
}

func TestRunner_UnknownPlatform(t *testing.T) {
	notify := &captureAdapter{}
	runner := NewRunner(RunnerConfig{
		Bridge:    newScriptedCommander(),
		ConfigDir: t.TempDir(),
		OutputDir: t.TempDir(),
		Adapter:   notify,
		Logger:    log.NewNop(),
	})

	outcome, err := runner.Run(t.Context(), "ghost", "q")
	if types.CodeOf(err) != types.CodeConfigError {
		t.Errorf("Run = %v, want CONFIG_ERROR", err)
	}
	if outcome.Status != types.OutcomeError {
		t.Errorf("status = %v, want error", outcome.Status)
	}
	if len(notify.events) != 1 || notify.events[0].ErrorCode != string(types.CodeConfigError) {
		t.Errorf("events = %+v, want one CONFIG_ERROR event", notify.events)
	}
}

func TestRegistry_FallsBackToSearchTask(t *testing.T) {
	r := NewRegistry()
	deps := Deps{Platform: &config.Platform{Name: "anything"}}

	if _, ok := r.New("anything", deps).(*SearchTask); !ok {
		t.Error("unregistered platform should build the generic search task")
	}

	r.Register("custom", func(Deps) Task { return &stubTask{} })
	if _, ok := r.New("custom", deps).(*stubTask); !ok {
		t.Error("registered factory not used")
	}
}

type stubTask struct{}

func (s *stubTask) Execute(context.Context, string) (*types.TaskOutcome, error) {
	return &types.TaskOutcome{Status: types.OutcomeSuccess}, nil
}
