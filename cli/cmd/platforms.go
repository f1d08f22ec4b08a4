package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/drover-io/drover/cli/config"
	"github.com/drover-io/drover/cli/render"
)

// PlatformInfo is one row of the platforms listing.
type PlatformInfo struct {
	Name     string `json:"name"`
	BaseURL  string `json:"base_url"`
	Strategy string `json:"strategy"`
	Valid    bool   `json:"valid"`
}

// PlatformsCommand returns the platforms command: list configured
// platforms from the local config directory. Read-only; never contacts
// the executor.
func PlatformsCommand() *cli.Command {
	flags := append(channelFlags(), ConfigFlag)
	flags = append(flags, OutputFlags()...)

	return &cli.Command{
		Name:   "platforms",
		Usage:  "List configured platforms",
		Flags:  flags,
		Action: platformsAction,
	}
}

func platformsAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	renderer, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	names, err := config.ListPlatforms(cfg.ConfigDir)
	if err != nil {
		return cli.Exit(err.Error(), exitTaskError)
	}

	infos := make([]PlatformInfo, 0, len(names))
	for _, name := range names {
		info := PlatformInfo{Name: name}
		platform, err := config.LoadPlatform(cfg.ConfigDir, name)
		if err == nil {
			info.BaseURL = platform.BaseURL
			info.Strategy = platform.Settings.Iteration.Type
			info.Valid = true
		}
		infos = append(infos, info)
	}

	return renderer.Render(infos)
}
