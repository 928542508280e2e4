// Package config loads rum's configuration: an optional TOML file plus
// environment overrides, on top of built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

// Environment variables that override the config file.
const (
	EnvRunsDir  = "RUM_RUNS_DIR"
	EnvLogLevel = "RUM_LOG_LEVEL"
)

// Defaults used when neither the file nor the environment sets a value.
const (
	DefaultPollInterval = 250 * time.Millisecond
	DefaultReadyTimeout = 10 * time.Second
	DefaultLogLevel     = "warn"
)

// Duration is a time.Duration written as a Go duration string ("250ms").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the effective configuration.
type Config struct {
	// RunsDir is where run directories are stored.
	RunsDir string `toml:"runs_dir"`

	// PollInterval is the follow fallback wakeup for view.
	PollInterval Duration `toml:"poll_interval"`

	// ReadyTimeout bounds how long start waits for the supervisor.
	ReadyTimeout Duration `toml:"ready_timeout"`

	// ConfirmRemove asks before deleting runs unless --yes is given.
	ConfirmRemove bool `toml:"confirm_remove"`

	// LogLevel is the default diagnostic log level (logrus names).
	LogLevel string `toml:"log_level"`
}

// Default returns the configuration used when no file exists.
func Default() (*Config, error) {
	runsDir, err := DefaultRunsDir()
	if err != nil {
		return nil, err
	}
	return &Config{
		RunsDir:       runsDir,
		PollInterval:  Duration{DefaultPollInterval},
		ReadyTimeout:  Duration{DefaultReadyTimeout},
		ConfirmRemove: true,
		LogLevel:      DefaultLogLevel,
	}, nil
}

// Load reads the config file at path over the defaults and applies the
// environment overrides. An empty path means the default location, where a
// missing file is not an error; an explicitly named file must exist.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	explicit := path != ""
	if !explicit {
		path, err = DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvRunsDir); v != "" {
		c.RunsDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Validate checks that every value is usable.
func (c *Config) Validate() error {
	if c.RunsDir == "" {
		return fmt.Errorf("runs_dir is empty")
	}
	if c.PollInterval.Duration <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.ReadyTimeout.Duration <= 0 {
		return fmt.Errorf("ready_timeout must be positive, got %s", c.ReadyTimeout)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}
