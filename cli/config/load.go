package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/drover-io/drover/types"
)

// Load reads and parses a controller config file. A missing file is not
// an error; callers get the zero config and flag defaults apply.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), &cfg); err != nil {
		return nil, types.WrapTaskError(types.CodeConfigError, err, "parse config %s", path)
	}
	return &cfg, nil
}

// LoadPlatform reads config/<name>.yaml from dir and validates it.
func LoadPlatform(dir, name string) (*Platform, error) {
	path := filepath.Join(dir, name+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.NewTaskError(types.CodeConfigError,
				"no configuration for platform %q (%s)", name, path)
		}
		return nil, fmt.Errorf("read platform config %s: %w", path, err)
	}

	platform := Platform{Name: name}
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), &platform); err != nil {
		return nil, types.WrapTaskError(types.CodeConfigError, err, "parse platform config %s", path)
	}
	if err := platform.Validate(); err != nil {
		return nil, err
	}
	return &platform, nil
}

// ListPlatforms returns the platform names configured in dir, sorted.
func ListPlatforms(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list platform configs in %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".yaml"))
	}
	sort.Strings(names)
	return names, nil
}

// ExpandEnv substitutes ${VAR} and ${VAR:-default} references.
func ExpandEnv(s string) string {
	return os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if value, ok := os.LookupEnv(name); ok && value != "" {
			return value
		}
		if hasFallback {
			return fallback
		}
		return ""
	})
}
