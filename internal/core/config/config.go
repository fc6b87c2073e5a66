// Package config handles configuration loading and validation for hive-review.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Diff modes used when capturing a code review diff.
const (
	DiffUncommitted = "uncommitted"
	DiffStaged      = "staged"
	DiffBranch      = "branch"
)

// Config holds the application configuration.
type Config struct {
	GitPath   string        `yaml:"git_path"`
	Storage   StorageConfig `yaml:"storage"`
	Review    ReviewConfig  `yaml:"review"`
	Watch     WatchConfig   `yaml:"watch"`
	Events    EventsConfig  `yaml:"events"`
	Workspace string        `yaml:"-"` // set by caller, not from config file
}

// StorageConfig selects where review sessions are persisted. Features,
// plans and comments always live as files under the workspace.
type StorageConfig struct {
	Backend string `yaml:"backend"`
}

// ReviewConfig controls what a new review session captures from git.
type ReviewConfig struct {
	CaptureGit bool   `yaml:"capture_git"`
	DiffMode   string `yaml:"diff_mode"`
	BaseBranch string `yaml:"base_branch"`
}

// WatchConfig configures `review watch`.
type WatchConfig struct {
	// Include holds doublestar globs, relative to the workspace, of files
	// whose changes trigger an outdated sync.
	Include  []string      `yaml:"include"`
	Debounce time.Duration `yaml:"debounce"`
}

// EventsConfig configures the event bus.
type EventsConfig struct {
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		GitPath: "git",
		Storage: StorageConfig{
			Backend: BackendJSON,
		},
		Review: ReviewConfig{
			CaptureGit: true,
			DiffMode:   DiffUncommitted,
			BaseBranch: "main",
		},
		Watch: WatchConfig{
			Include:  []string{"**/*"},
			Debounce: 200 * time.Millisecond,
		},
	}
}

// Load reads configuration from the given path and sets the workspace.
// If configPath is empty or doesn't exist, returns defaults with the provided workspace.
func Load(configPath, workspace string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	cfg.Workspace = workspace
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.GitPath == "" {
		c.GitPath = defaults.GitPath
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaults.Storage.Backend
	}
	if c.Review.DiffMode == "" {
		c.Review.DiffMode = defaults.Review.DiffMode
	}
	if c.Review.BaseBranch == "" {
		c.Review.BaseBranch = defaults.Review.BaseBranch
	}
	if len(c.Watch.Include) == 0 {
		c.Watch.Include = defaults.Watch.Include
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = defaults.Watch.Debounce
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Workspace == "" {
		return fmt.Errorf("workspace cannot be empty")
	}

	switch c.Storage.Backend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", BackendJSON, BackendSQLite, c.Storage.Backend)
	}

	switch c.Review.DiffMode {
	case DiffUncommitted, DiffStaged, DiffBranch:
	default:
		return fmt.Errorf("review.diff_mode %q is not one of uncommitted, staged, branch", c.Review.DiffMode)
	}

	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce cannot be negative")
	}

	return nil
}

// HiveDir returns the .hive directory of the workspace.
func (c *Config) HiveDir() string {
	return filepath.Join(c.Workspace, ".hive")
}
