// Package config loads the controller and per-platform YAML
// configuration files. CLI flags always override config values.
package config

import (
	"fmt"
	"time"

	"github.com/drover-io/drover/engine"
	"github.com/drover-io/drover/types"
)

// Config represents a drover.yaml controller configuration file.
// All values are optional and act as defaults for CLI flags.
type Config struct {
	Channel   ChannelConfig   `yaml:"channel"`
	Trigger   TriggerConfig   `yaml:"trigger"`
	Output    OutputConfig    `yaml:"output"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Adapter   AdapterConfig   `yaml:"adapter"`
	PIDFile   string          `yaml:"pid_file"`
	// ConfigDir is where per-platform config files live.
	ConfigDir string `yaml:"config_dir"`
}

// ChannelConfig selects the executor transport.
type ChannelConfig struct {
	// Kind is "stdio" (native-messaging host) or "tcp".
	Kind string `yaml:"kind"`
	// Addr is the executor socket address for the tcp kind.
	Addr string `yaml:"addr"`
}

// TriggerConfig holds local trigger channel settings.
type TriggerConfig struct {
	Addr string `yaml:"addr"`
}

// OutputConfig holds result-log settings.
type OutputConfig struct {
	// Dir is the directory result logs are written to.
	Dir string `yaml:"dir"`
}

// HeartbeatConfig tunes the connection supervisor.
type HeartbeatConfig struct {
	Interval Duration `yaml:"interval"`
	Timeout  Duration `yaml:"timeout"`
}

// ArchiveConfig configures the optional post-run log archive.
type ArchiveConfig struct {
	// Backend is "s3" or empty (archive disabled).
	Backend     string `yaml:"backend"`
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds notification adapter defaults.
type AdapterConfig struct {
	// Type is "webhook", "redis", or empty (notifications disabled).
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Platform is a per-platform configuration file: config/<platform>.yaml.
type Platform struct {
	// Name is derived from the filename, not stored in the file.
	Name string `yaml:"-"`
	// BaseURL is the page the task starts from.
	BaseURL string `yaml:"base_url"`
	// Selectors maps logical element names to CSS selectors
	// (search_input, results_container, next_page_button, ...).
	Selectors map[string]string `yaml:"selectors"`
	Settings  Settings          `yaml:"settings"`
}

// Settings groups the per-platform tunables.
type Settings struct {
	Iteration    IterationSettings `yaml:"iteration"`
	RateLimiting RateLimitSettings `yaml:"rate_limiting"`
	Timeouts     TimeoutSettings   `yaml:"timeouts"`
}

// IterationSettings tunes the traversal engine.
type IterationSettings struct {
	// Type selects the strategy: pagination, infinite_scroll, or depth.
	Type           string   `yaml:"type"`
	MaxPages       int      `yaml:"max_pages"`
	MaxItems       int      `yaml:"max_items"`
	MaxDepth       int      `yaml:"max_depth"`
	MaxVisited     int      `yaml:"max_visited"`
	SameDomainOnly bool     `yaml:"same_domain_only"`
	ScrollDelay    Duration `yaml:"scroll_delay"`
	StableStreak   int      `yaml:"stable_streak"`
}

// RateLimitSettings paces actions against the remote executor.
type RateLimitSettings struct {
	ActionDelay    Duration `yaml:"action_delay"`
	RandomizeDelay bool     `yaml:"randomize_delay"`
	PageLoadDelay  Duration `yaml:"page_load_delay"`
}

// TimeoutSettings bounds command round-trips and whole runs.
type TimeoutSettings struct {
	// Command bounds one command/result round-trip (default 30s).
	Command Duration `yaml:"command"`
	// TaskExecution is the run-wide deadline (default 90s).
	TaskExecution Duration `yaml:"task_execution"`
}

// Selector returns the named selector, empty when unset.
func (p *Platform) Selector(name string) string {
	return p.Selectors[name]
}

// Validate checks the platform config. Failures surface as
// CONFIG_ERROR and are never retried.
func (p *Platform) Validate() error {
	strategy := engine.Strategy(p.Settings.Iteration.Type)
	if !strategy.Valid() {
		return types.NewTaskError(types.CodeConfigError,
			"platform %s: unknown iteration type %q", p.Name, p.Settings.Iteration.Type)
	}
	if p.BaseURL == "" {
		return types.NewTaskError(types.CodeConfigError,
			"platform %s: base_url is required", p.Name)
	}
	if strategy == engine.StrategyPagination && p.Selector("results_container") == "" {
		return types.NewTaskError(types.CodeConfigError,
			"platform %s: pagination requires a results_container selector", p.Name)
	}
	return nil
}

// CommandTimeout returns the per-command timeout with its default.
func (p *Platform) CommandTimeout() time.Duration {
	if d := p.Settings.Timeouts.Command.Duration; d > 0 {
		return d
	}
	return 30 * time.Second
}

// TaskTimeout returns the run-wide deadline with its default.
func (p *Platform) TaskTimeout() time.Duration {
	if d := p.Settings.Timeouts.TaskExecution.Duration; d > 0 {
		return d
	}
	return 90 * time.Second
}
