package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/drover-io/drover/cli/tui"
)

// WatchCommand returns the watch command: a live TUI over a result log.
func WatchCommand() *cli.Command {
	flags := append(channelFlags(), ConfigFlag)

	return &cli.Command{
		Name:      "watch",
		Usage:     "Tail a result log in an interactive view",
		ArgsUsage: "[log file]",
		Flags:     flags,
		Action:    watchAction,
	}
}

func watchAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		cfg, err := loadConfig(c)
		if err != nil {
			return cli.Exit(err.Error(), exitConfigError)
		}
		path, err = latestLog(cfg.Output.Dir)
		if err != nil {
			return cli.Exit(err.Error(), exitTaskError)
		}
	}

	if err := tui.RunWatch(path); err != nil {
		return cli.Exit(err.Error(), exitTaskError)
	}
	return nil
}

// latestLog returns the most recently modified result log in dir.
func latestLog(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read output directory %s: %w", dir, err)
	}

	type candidate struct {
		path    string
		modTime int64
	}
	var logs []candidate
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		logs = append(logs, candidate{
			path:    filepath.Join(dir, entry.Name()),
			modTime: info.ModTime().UnixNano(),
		})
	}
	if len(logs) == 0 {
		return "", fmt.Errorf("no result logs in %s", dir)
	}

	sort.Slice(logs, func(i, j int) bool { return logs[i].modTime > logs[j].modTime })
	return logs[0].path, nil
}
