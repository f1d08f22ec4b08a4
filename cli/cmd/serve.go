package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/drover-io/drover/bridge"
	"github.com/drover-io/drover/log"
	"github.com/drover-io/drover/proc"
	"github.com/drover-io/drover/task"
	"github.com/drover-io/drover/trigger"
	"github.com/drover-io/drover/types"
)

// ServeCommand returns the serve command: the long-running controller
// accepting triggers and supervising the executor channel.
func ServeCommand() *cli.Command {
	flags := append(channelFlags(),
		&cli.StringFlag{
			Name:  "trigger-addr",
			Usage: "Trigger listen address",
		},
		&cli.StringFlag{
			Name:  "pid-file",
			Usage: "Single-instance lock file path",
		},
		ConfigFlag,
	)

	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the controller: supervise the executor channel and accept triggers",
		Flags:  flags,
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	if addr := c.String("trigger-addr"); addr != "" {
		cfg.Trigger.Addr = addr
	}
	if path := c.String("pid-file"); path != "" {
		cfg.PIDFile = path
	}

	// stdout may carry the executor channel; all logging goes to stderr.
	logger := log.NewLogger("", "")

	lock, err := proc.Acquire(cfg.PIDFile)
	if err != nil {
		if errors.Is(err, proc.ErrAlreadyRunning) {
			return cli.Exit(err.Error(), exitTaskError)
		}
		return cli.Exit(fmt.Sprintf("pid lock: %v", err), exitTaskError)
	}
	defer func() { _ = lock.Release() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifier, err := buildAdapter(cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	if notifier != nil {
		defer func() { _ = notifier.Close() }()
	}
	archiver, err := buildArchiver(ctx, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	supervisor := bridge.NewSupervisor(bridge.SupervisorConfig{
		Dial:              buildDialer(cfg),
		HeartbeatInterval: cfg.Heartbeat.Interval.Duration,
		HeartbeatTimeout:  cfg.Heartbeat.Timeout.Duration,
		Logger:            logger,
	})

	runner := task.NewRunner(task.RunnerConfig{
		Bridge:    supervisor,
		Registry:  task.DefaultRegistry(),
		ConfigDir: cfg.ConfigDir,
		OutputDir: cfg.Output.Dir,
		Adapter:   notifier,
		Archiver:  archiver,
		Logger:    logger,
	})

	// One task at a time: the controller drives a single browser surface,
	// so concurrent traversals would fight over the page.
	runs := make(chan trigger.Request, 1)

	server := trigger.NewServer(cfg.Trigger.Addr, func(_ context.Context, req trigger.Request) trigger.Ack {
		return handleTrigger(req, runs, runner, supervisor)
	}, logger)
	if err := server.Start(ctx); err != nil {
		return cli.Exit(err.Error(), exitTaskError)
	}
	defer func() { _ = server.Close() }()

	supErr := make(chan error, 1)
	go func() { supErr <- supervisor.Run(ctx) }()

	logger.Info("controller started", map[string]any{
		"channel":    cfg.Channel.Kind,
		"trigger":    cfg.Trigger.Addr,
		"config_dir": cfg.ConfigDir,
		"output_dir": cfg.Output.Dir,
	})

	for {
		select {
		case <-ctx.Done():
			logger.Info("controller shutting down", nil)
			return nil

		case err := <-supErr:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return cli.Exit(fmt.Sprintf("executor channel unrecoverable: %v", err), exitChannelFailure)

		case req := <-runs:
			outcome, err := runner.Run(ctx, req.Platform, req.Query)
			fields := map[string]any{
				"platform": outcome.Platform,
				"run_id":   outcome.RunID,
				"status":   string(outcome.Status),
				"items":    len(outcome.Items),
			}
			if err != nil {
				fields["error"] = err.Error()
			}
			logger.Info("task finished", fields)

		case msg := <-supervisor.Incoming():
			if req, ok := browserTrigger(msg); ok {
				select {
				case runs <- req:
					logger.Info("browser trigger accepted", map[string]any{
						"platform": req.Platform,
					})
				default:
					logger.Warn("browser trigger dropped, task already running", map[string]any{
						"platform": req.Platform,
					})
				}
				continue
			}
			logger.Debug("unsolicited browser message", map[string]any{"message": msg})
		}
	}
}

// handleTrigger processes one trigger request. Runs on a connection
// goroutine, so start_task hands the work to the dispatch loop and
// acknowledges immediately.
func handleTrigger(req trigger.Request, runs chan<- trigger.Request, runner *task.Runner, supervisor *bridge.Supervisor) trigger.Ack {
	switch req.Action {
	case trigger.ActionPing:
		return trigger.OK(fmt.Sprintf("pong (%s)", supervisor.State()))

	case trigger.ActionListPlatforms:
		names, err := runner.Platforms()
		if err != nil {
			return trigger.Error(err.Error())
		}
		ack := trigger.OK(fmt.Sprintf("%d platforms configured", len(names)))
		ack.Platforms = names
		return ack

	case trigger.ActionStartTask:
		if supervisor.State() == types.StateDisconnected {
			return trigger.Error("executor channel is not connected")
		}
		select {
		case runs <- req:
			return trigger.OK("task accepted")
		default:
			return trigger.Error("a task is already running")
		}

	default:
		return trigger.Error("unknown action")
	}
}

// browserTrigger recognizes a start_task message pushed by the browser
// side over the executor channel.
func browserTrigger(msg map[string]any) (trigger.Request, bool) {
	action, _ := msg["action"].(string)
	if action != trigger.ActionStartTask {
		return trigger.Request{}, false
	}
	platform, _ := msg["platform"].(string)
	if platform == "" {
		return trigger.Request{}, false
	}
	query, _ := msg["query"].(string)
	return trigger.Request{Action: action, Platform: platform, Query: query}, true
}
