package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/drover-io/drover/bridge"
	"github.com/drover-io/drover/cli/render"
	"github.com/drover-io/drover/log"
	"github.com/drover-io/drover/task"
	"github.com/drover-io/drover/types"
)

// RunCommand returns the run command: execute one task and exit.
func RunCommand() *cli.Command {
	flags := append(channelFlags(),
		&cli.StringFlag{
			Name:     "platform",
			Aliases:  []string{"p"},
			Usage:    "Platform to run against",
			Required: true,
		},
		&cli.StringFlag{
			Name:    "query",
			Aliases: []string{"q"},
			Usage:   "Search query",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Suppress outcome output",
		},
		ConfigFlag,
	)
	flags = append(flags, OutputFlags()...)

	return &cli.Command{
		Name:   "run",
		Usage:  "Execute one task against a connected executor and exit",
		Flags:  flags,
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	renderer, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	logger := log.NewLogger("", "")

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

	// One-shot mode dials once; channel loss fails the run rather than
	// entering a reconnect cycle.
	channel, err := buildDialer(cfg)(ctx)
	if err != nil {
		return cli.Exit(fmt.Sprintf("open executor channel: %v", err), exitChannelFailure)
	}
	b := bridge.New(channel, logger, nil)
	defer func() { _ = b.Close() }()

	runner := task.NewRunner(task.RunnerConfig{
		Bridge:    b,
		Registry:  task.DefaultRegistry(),
		ConfigDir: cfg.ConfigDir,
		OutputDir: cfg.Output.Dir,
		Adapter:   notifier,
		Archiver:  archiver,
		Logger:    logger,
	})

	outcome, _ := runner.Run(ctx, c.String("platform"), c.String("query"))

	if !c.Bool("quiet") {
		if err := renderer.RenderOutcome(outcome); err != nil {
			return cli.Exit(err.Error(), exitTaskError)
		}
	}
	return cli.Exit("", outcomeExitCode(outcome))
}

// outcomeExitCode maps a task outcome onto the documented exit codes:
// 0 success, 1 task error, 2 channel failure, 3 configuration error.
func outcomeExitCode(outcome *types.TaskOutcome) int {
	if outcome.Status == types.OutcomeSuccess {
		return exitSuccess
	}
	if outcome.Failure == nil {
		return exitTaskError
	}
	switch outcome.Failure.Code {
	case types.CodeChannelClosed:
		return exitChannelFailure
	case types.CodeConfigError:
		return exitConfigError
	default:
		return exitTaskError
	}
}
