package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/drover-io/drover/cli/render"
	"github.com/drover-io/drover/trigger"
)

// triggerTimeout bounds the whole trigger exchange.
const triggerTimeout = 5 * time.Second

// TriggerCommand returns the trigger command: send one request to a
// running controller.
func TriggerCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:  "action",
			Usage: "Trigger action: start_task, list_platforms, ping",
			Value: trigger.ActionStartTask,
		},
		&cli.StringFlag{
			Name:    "platform",
			Aliases: []string{"p"},
			Usage:   "Platform to run (start_task)",
		},
		&cli.StringFlag{
			Name:    "query",
			Aliases: []string{"q"},
			Usage:   "Search query (start_task)",
		},
		&cli.StringFlag{
			Name:  "addr",
			Usage: "Controller trigger address",
			Value: trigger.DefaultAddr,
		},
	}
	flags = append(flags, OutputFlags()...)

	return &cli.Command{
		Name:   "trigger",
		Usage:  "Send a trigger request to a running controller",
		Flags:  flags,
		Action: triggerAction,
	}
}

func triggerAction(c *cli.Context) error {
	renderer, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	req := trigger.Request{
		Action:   c.String("action"),
		Platform: c.String("platform"),
		Query:    c.String("query"),
	}
	if err := req.Validate(); err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	ack, err := trigger.Send(c.String("addr"), req, triggerTimeout)
	if err != nil {
		return cli.Exit(err.Error(), exitTaskError)
	}

	if err := renderer.Render(ack); err != nil {
		return cli.Exit(err.Error(), exitTaskError)
	}
	if ack.Status != "ok" {
		return cli.Exit("", exitTaskError)
	}
	return nil
}
