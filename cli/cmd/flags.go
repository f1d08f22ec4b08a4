// Package cmd provides CLI commands for the drover binary.
package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/drover-io/drover/cli/config"
)

// Exit codes.
const (
	exitSuccess        = 0
	exitTaskError      = 1
	exitChannelFailure = 2
	exitConfigError    = 3
)

// Defaults applied when neither flag nor config file sets a value.
const (
	defaultConfigPath = "drover.yaml"
	defaultConfigDir  = "config"
	defaultOutputDir  = "output/results"
	defaultPIDFile    = "drover.pid"
	defaultTCPAddr    = "127.0.0.1:9333"
)

// Shared flags.
var (
	// ConfigFlag points at the controller config file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to controller config file",
		Value:   defaultConfigPath,
	}

	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}
)

// OutputFlags returns the shared rendering flags.
func OutputFlags() []cli.Flag {
	return []cli.Flag{FormatFlag, NoColorFlag}
}

// channelFlags returns the executor channel flags shared by serve and run.
func channelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "channel",
			Usage: "Executor channel: stdio or tcp",
		},
		&cli.StringFlag{
			Name:  "channel-addr",
			Usage: "Executor socket address (tcp channel)",
		},
		&cli.StringFlag{
			Name:  "config-dir",
			Usage: "Directory with per-platform config files",
		},
		&cli.StringFlag{
			Name:  "output-dir",
			Usage: "Directory result logs are written to",
		},
	}
}

// loadConfig reads the config file named by --config and overlays the
// flags that override it. Flags always win over file values.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if kind := c.String("channel"); kind != "" {
		cfg.Channel.Kind = kind
	}
	if addr := c.String("channel-addr"); addr != "" {
		cfg.Channel.Addr = addr
	}
	if dir := c.String("config-dir"); dir != "" {
		cfg.ConfigDir = dir
	}
	if dir := c.String("output-dir"); dir != "" {
		cfg.Output.Dir = dir
	}

	if cfg.Channel.Kind == "" {
		cfg.Channel.Kind = "stdio"
	}
	if cfg.Channel.Addr == "" {
		cfg.Channel.Addr = defaultTCPAddr
	}
	if cfg.ConfigDir == "" {
		cfg.ConfigDir = defaultConfigDir
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = defaultOutputDir
	}
	if cfg.PIDFile == "" {
		cfg.PIDFile = defaultPIDFile
	}

	switch cfg.Channel.Kind {
	case "stdio", "tcp":
	default:
		return nil, fmt.Errorf("unknown channel kind %q (must be stdio or tcp)", cfg.Channel.Kind)
	}
	return cfg, nil
}
