// Package main provides the drover CLI entrypoint.
//
// Usage:
//
//	drover <command> [options]
//
// Exit codes for run and serve:
//   - 0: success
//   - 1: task error
//   - 2: executor channel failure
//   - 3: configuration error
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/drover-io/drover/cli/cmd"
	"github.com/drover-io/drover/types"
)

// commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "drover",
		Usage:          "Browser automation controller",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.ServeCommand(),
			cmd.RunCommand(),
			cmd.TriggerCommand(),
			cmd.PlatformsCommand(),
			cmd.WatchCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled cli.ExitCoder errors; this
		// branch covers unexpected errors that were not wrapped.
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit so the documented
// run/serve codes propagate to callers.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		// cli.Exit("", N).Error() returns "exit status N"; skip those.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
