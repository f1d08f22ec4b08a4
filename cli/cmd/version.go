package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/drover-io/drover/cli/render"
	"github.com/drover-io/drover/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// VersionCommand returns the version command. It must not contact a
// controller or the executor.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  OutputFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		renderer, err := render.NewRenderer(c)
		if err != nil {
			return err
		}
		return renderer.Render(VersionResponse{
			Version: types.Version,
			Commit:  commit,
		})
	}
}
