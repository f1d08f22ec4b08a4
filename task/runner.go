package task

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/drover-io/drover/adapter"
	"github.com/drover-io/drover/cli/config"
	"github.com/drover-io/drover/engine"
	"github.com/drover-io/drover/log"
	"github.com/drover-io/drover/metrics"
	"github.com/drover-io/drover/pace"
	"github.com/drover-io/drover/storage"
	"github.com/drover-io/drover/types"
)

// EventContractVersion is the task-completed event schema version.
const EventContractVersion = "1.0"

// publishTimeout bounds post-run side effects (notify, archive) so a
// dead downstream cannot wedge the dispatch loop.
const publishTimeout = 30 * time.Second

// RunnerConfig assembles a Runner.
type RunnerConfig struct {
	// Bridge is the command surface to the executor; required.
	Bridge Commander
	// Registry resolves platforms to tasks; nil means generic search only.
	Registry *Registry
	// ConfigDir holds per-platform YAML files.
	ConfigDir string
	// OutputDir receives result logs.
	OutputDir string
	// Adapter publishes completion events; nil disables notifications.
	Adapter adapter.Adapter
	// Archiver uploads finished result logs; nil disables archiving.
	Archiver *storage.Archiver
	// Logger is required.
	Logger *log.Logger
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// Runner executes one task run end to end: platform config, result log,
// driver, engine, the run-wide deadline, and completion side effects.
type Runner struct {
	cfg RunnerConfig
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Registry == nil {
		cfg.Registry = DefaultRegistry()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Runner{cfg: cfg}
}

// Platforms lists the platforms with a configuration file.
func (r *Runner) Platforms() ([]string, error) {
	return config.ListPlatforms(r.cfg.ConfigDir)
}

// Run executes one task for platform and query and returns its outcome.
// Every run gets an outcome, including failed ones; the error reports
// the failure cause for callers that branch on it.
func (r *Runner) Run(ctx context.Context, platformName, query string) (*types.TaskOutcome, error) {
	runID := uuid.NewString()
	start := r.cfg.Now()
	logger := log.NewLogger(platformName, runID)

	platform, err := config.LoadPlatform(r.cfg.ConfigDir, platformName)
	if err != nil {
		outcome := types.Failed(platformName, runID, nil, 0, types.CodeOf(err), err.Error())
		r.publish(ctx, outcome, query, "", start, logger)
		return outcome, err
	}

	logPath := storage.TimestampedPath(r.cfg.OutputDir, platformName, start)
	resultLog, err := storage.Open(logPath)
	if err != nil {
		outcome := types.Failed(platformName, runID, nil, 0, types.CodeExecutionError, err.Error())
		r.publish(ctx, outcome, query, "", start, logger)
		return outcome, err
	}

	outcome, runErr := r.execute(ctx, platform, query, runID, resultLog, logger)

	r.record(resultLog, outcome, query, logger)
	if err := resultLog.Close(); err != nil {
		logger.Warn("result log close failed", map[string]any{"error": err.Error()})
	}

	r.archive(ctx, logPath, logger)
	r.publish(ctx, outcome, query, logPath, start, logger)
	return outcome, runErr
}

// execute builds the per-run machinery and races the task against the
// platform's run-wide deadline.
func (r *Runner) execute(ctx context.Context, platform *config.Platform, query, runID string, resultLog *storage.Log, logger *log.Logger) (*types.TaskOutcome, error) {
	collector := metrics.NewCollector(platform.Name, runID)
	driver := NewDriver(r.cfg.Bridge, platform, logger)
	progress := NewProgressTracker(platform.Name, logger, resultLog)

	rateLimiting := platform.Settings.RateLimiting
	actionDelay := rateLimiting.ActionDelay.Duration
	if actionDelay <= 0 {
		actionDelay = 500 * time.Millisecond
	}

	eng := engine.New(engine.Config{
		Driver: driver,
		Sink: func(items []map[string]any) error {
			for _, item := range items {
				if err := resultLog.AppendItem(platform.Name, item); err != nil {
					return err
				}
			}
			return nil
		},
		Limiter: pace.RateLimiter{
			BaseDelay: actionDelay,
			Jitter:    rateLimiting.RandomizeDelay,
		},
		Retry:     pace.DefaultRetryPolicy(logger),
		Progress:  progress.Emit,
		Logger:    logger,
		Collector: collector,
	})

	runCtx, cancel := context.WithTimeout(ctx, platform.TaskTimeout())
	defer cancel()

	run := r.cfg.Registry.New(platform.Name, Deps{
		Driver:    driver,
		Engine:    eng,
		Platform:  platform,
		Progress:  progress,
		Collector: collector,
		Logger:    logger,
		RunID:     runID,
	})

	outcome, err := run.Execute(runCtx, query)
	if err != nil && runCtx.Err() != nil && outcome.Failure != nil {
		// The run-wide deadline fired. Whatever the aborted action
		// reported, the run-level classification is TIMEOUT.
		outcome.Failure.Code = types.CodeTimeout
		err = types.WrapTaskError(types.CodeTimeout, err, "task deadline exceeded after %s", platform.TaskTimeout())
	}
	return outcome, err
}

// record appends the run's closing record: a summary on success, an
// error record on failure.
func (r *Runner) record(resultLog *storage.Log, outcome *types.TaskOutcome, query string, logger *log.Logger) {
	var err error
	if outcome.Status == types.OutcomeSuccess {
		err = resultLog.AppendSummary(outcome.Platform, map[string]any{
			"query":           query,
			"total_items":     len(outcome.Items),
			"pages_processed": outcome.PagesProcessed,
			"duration_ms":     outcome.Performance.Duration.Milliseconds(),
		})
	} else {
		err = resultLog.AppendError(outcome.Platform, string(outcome.Failure.Code), outcome.Failure.Message)
	}
	if err != nil {
		logger.Warn("closing record append failed", map[string]any{"error": err.Error()})
	}
}

// archive uploads the finished result log when archiving is configured.
func (r *Runner) archive(ctx context.Context, logPath string, logger *log.Logger) {
	if r.cfg.Archiver == nil {
		return
	}
	uploadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := r.cfg.Archiver.Upload(uploadCtx, logPath); err != nil {
		logger.Warn("result log archive failed", map[string]any{
			"path":  logPath,
			"error": err.Error(),
		})
	}
}

// publish sends the task-completed event when an adapter is configured.
func (r *Runner) publish(ctx context.Context, outcome *types.TaskOutcome, query, logPath string, start time.Time, logger *log.Logger) {
	if r.cfg.Adapter == nil {
		return
	}

	event := &adapter.TaskCompletedEvent{
		ContractVersion: EventContractVersion,
		EventType:       "task_completed",
		RunID:           outcome.RunID,
		Platform:        outcome.Platform,
		Query:           query,
		Outcome:         string(outcome.Status),
		ResultLog:       logPath,
		Timestamp:       start.UTC().Format(time.RFC3339),
		ItemCount:       len(outcome.Items),
		PagesProcessed:  outcome.PagesProcessed,
		DurationMs:      outcome.Performance.Duration.Milliseconds(),
	}
	if outcome.Failure != nil {
		event.ErrorCode = string(outcome.Failure.Code)
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := r.cfg.Adapter.Publish(publishCtx, event); err != nil {
		logger.Warn("completion event publish failed", map[string]any{
			"run_id": outcome.RunID,
			"error":  err.Error(),
		})
	}
}
