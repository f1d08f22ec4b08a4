package task

import (
	"context"
	"sync"
	"time"

	"github.com/drover-io/drover/cli/config"
	"github.com/drover-io/drover/engine"
	"github.com/drover-io/drover/log"
	"github.com/drover-io/drover/metrics"
	"github.com/drover-io/drover/pace"
	"github.com/drover-io/drover/types"
)

// Task is one platform automation executed per trigger.
type Task interface {
	// Execute runs the task to completion and returns its outcome.
	// A failed run still returns an outcome carrying every item
	// collected before the failure.
	Execute(ctx context.Context, query string) (*types.TaskOutcome, error)
}

// Deps is everything a task factory receives from the runner.
type Deps struct {
	Driver    *Driver
	Engine    *engine.Engine
	Platform  *config.Platform
	Progress  *ProgressTracker
	Collector *metrics.Collector
	Logger    *log.Logger
	RunID     string
}

// Factory builds a task from its runtime dependencies.
type Factory func(deps Deps) Task

// Registry maps platform names to task factories. Platforms without a
// registered factory fall back to the generic search task, which covers
// any site describable purely by selectors.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs a factory for a platform, replacing any previous one.
func (r *Registry) Register(platform string, factory Factory) {
	r.mu.Lock()
	r.factories[platform] = factory
	r.mu.Unlock()
}

// New builds the task for a platform.
func (r *Registry) New(platform string, deps Deps) Task {
	r.mu.RLock()
	factory, ok := r.factories[platform]
	r.mu.RUnlock()
	if ok {
		return factory(deps)
	}
	return NewSearchTask(deps)
}

// searchSettleDelay lets results render after the query is submitted.
const searchSettleDelay = 2 * time.Second

// SearchTask is the generic search-and-collect flow: navigate to the
// platform's base URL, submit the query through the configured search
// input, then run the platform's iteration strategy over the results.
type SearchTask struct {
	deps  Deps
	sleep pace.SleepFunc
	now   func() time.Time
}

// NewSearchTask creates the generic search task.
func NewSearchTask(deps Deps) Task {
	return &SearchTask{deps: deps, sleep: pace.Sleep, now: time.Now}
}

// Execute implements Task.
func (t *SearchTask) Execute(ctx context.Context, query string) (*types.TaskOutcome, error) {
	start := t.now()
	platform := t.deps.Platform

	t.deps.Progress.Emit("task_start", map[string]any{"query": query})

	if err := t.deps.Driver.Navigate(ctx, platform.BaseURL); err != nil {
		return t.fail(start, nil, err), err
	}
	if err := t.submitQuery(ctx, query); err != nil {
		return t.fail(start, nil, err), err
	}

	items, err := t.deps.Engine.Run(ctx, engineOptions(platform))
	if err != nil {
		t.deps.Progress.Emit("task_error", map[string]any{
			"query": query,
			"code":  string(types.CodeOf(err)),
			"error": err.Error(),
		})
		return t.fail(start, items, err), err
	}

	outcome := &types.TaskOutcome{
		Status:   types.OutcomeSuccess,
		Platform: platform.Name,
		RunID:    t.deps.RunID,
		Items:    items,
	}
	t.finish(outcome, start)

	t.deps.Progress.Emit("task_complete", map[string]any{
		"query":           query,
		"total_items":     len(items),
		"pages_processed": outcome.PagesProcessed,
		"duration_ms":     outcome.Performance.Duration.Milliseconds(),
	})
	return outcome, nil
}

// submitQuery types the query into the search input and triggers the
// search. Platforms whose base URL already encodes the query configure
// no search_input and skip this step.
func (t *SearchTask) submitQuery(ctx context.Context, query string) error {
	input := t.deps.Platform.Selector("search_input")
	if input == "" || query == "" {
		return nil
	}

	if err := t.deps.Driver.Type(ctx, input, query); err != nil {
		return err
	}
	if button := t.deps.Platform.Selector("search_button"); button != "" {
		if err := t.deps.Driver.Click(ctx, button); err != nil {
			return err
		}
	}
	return t.sleep(ctx, searchSettleDelay)
}

// fail builds an error outcome preserving already-collected items.
func (t *SearchTask) fail(start time.Time, items []map[string]any, err error) *types.TaskOutcome {
	outcome := types.Failed(t.deps.Platform.Name, t.deps.RunID, items, 0, types.CodeOf(err), err.Error())
	t.finish(outcome, start)
	return outcome
}

// finish stamps performance figures and page counts from the collector.
func (t *SearchTask) finish(outcome *types.TaskOutcome, start time.Time) {
	snapshot := t.deps.Collector.Snapshot()
	outcome.PagesProcessed = int(snapshot.PagesVisited)
	outcome.Performance = types.Performance{
		Duration: t.now().Sub(start),
		Retries:  int(snapshot.Retries),
	}
}

// engineOptions maps platform iteration settings onto engine options.
func engineOptions(platform *config.Platform) engine.Options {
	iteration := platform.Settings.Iteration
	return engine.Options{
		Strategy:       engine.Strategy(iteration.Type),
		MaxItems:       iteration.MaxItems,
		MaxPages:       iteration.MaxPages,
		MaxDepth:       iteration.MaxDepth,
		MaxVisited:     iteration.MaxVisited,
		SameDomainOnly: iteration.SameDomainOnly,
		StartURL:       platform.BaseURL,
		ScrollDelay:    iteration.ScrollDelay.Duration,
		StableStreak:   iteration.StableStreak,
	}
}
