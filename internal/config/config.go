// Package config loads genie's TOML configuration. Precedence per field:
// environment variable, then config file, then built-in default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the main configuration.
type Config struct {
	// StateDir is the per-project state directory holding workers.json,
	// batches/, the audit log, and event streams.
	StateDir string `toml:"state_dir"`
	// Remote, when set, runs all multiplexer commands over ssh on that host.
	Remote  string        `toml:"remote"`
	Monitor MonitorConfig `toml:"monitor"`
	Approve ApproveConfig `toml:"approve"`
	Batch   BatchConfig   `toml:"batch"`
}

// MonitorConfig tunes the pane poll loops.
type MonitorConfig struct {
	PollIntervalMs   int `toml:"poll_interval_ms"`
	CaptureLines     int `toml:"capture_lines"`
	SilenceSeconds   int `toml:"silence_seconds"`
	TimeoutSeconds   int `toml:"timeout_seconds"`
	// CompletionMethod names the default turn-completion strategy.
	CompletionMethod string `toml:"completion_method"`
}

// ApproveConfig configures the auto-approve engine.
type ApproveConfig struct {
	// PolicyFile is the global policy path; RepoPolicyFile is resolved
	// relative to the repository when not absolute.
	PolicyFile     string `toml:"policy_file"`
	RepoPolicyFile string `toml:"repo_policy_file"`
	DebounceMs     int    `toml:"debounce_ms"`
	// Watch enables hot-reloading the policy files.
	Watch bool `toml:"watch"`
}

// BatchConfig holds batch admission defaults.
type BatchConfig struct {
	MaxConcurrent int `toml:"max_concurrent"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		StateDir: defaultStateDir(),
		Monitor: MonitorConfig{
			PollIntervalMs:   500,
			CaptureLines:     100,
			SilenceSeconds:   30,
			TimeoutSeconds:   600,
			CompletionMethod: "silence",
		},
		Approve: ApproveConfig{
			PolicyFile:     filepath.Join(filepath.Dir(DefaultPath()), "approve.toml"),
			RepoPolicyFile: filepath.Join(".genie", "approve.yaml"),
			DebounceMs:     2000,
		},
		Batch: BatchConfig{
			MaxConcurrent: 4,
		},
	}
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	if env := os.Getenv("GENIE_CONFIG"); env != "" {
		return expandHome(env)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "genie", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "genie", "config.toml")
}

func defaultStateDir() string {
	if env := os.Getenv("GENIE_STATE_DIR"); env != "" {
		return expandHome(env)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "share", "genie")
}

// Load reads the config at path (DefaultPath when empty), layering TOML over
// defaults and environment variables over both. A missing file is fine; a
// file that fails to parse is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()

	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if v := os.Getenv("GENIE_STATE_DIR"); v != "" {
		cfg.StateDir = expandHome(v)
	}
	if v := os.Getenv("GENIE_REMOTE"); v != "" {
		cfg.Remote = v
	}
	if v := os.Getenv("GENIE_POLL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Monitor.PollIntervalMs = n
		}
	}
	if v := os.Getenv("GENIE_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Batch.MaxConcurrent = n
		}
	}
	if v := os.Getenv("GENIE_APPROVE_POLICY"); v != "" {
		cfg.Approve.PolicyFile = expandHome(v)
	}

	cfg.StateDir = expandHome(cfg.StateDir)
	return cfg, nil
}

// PollInterval returns the monitor poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Monitor.PollIntervalMs) * time.Millisecond
}

// SilenceThreshold returns the completion silence threshold as a duration.
func (c *Config) SilenceThreshold() time.Duration {
	return time.Duration(c.Monitor.SilenceSeconds) * time.Second
}

// Debounce returns the approval debounce window as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Approve.DebounceMs) * time.Millisecond
}

// RepoPolicyPath resolves the repo policy file against repoPath.
func (c *Config) RepoPolicyPath(repoPath string) string {
	p := c.Approve.RepoPolicyFile
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(repoPath, p)
}

// Save writes the config as TOML, creating parent directories.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil && home != "" {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
