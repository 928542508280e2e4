package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "rum"

// DefaultRunsDir returns the per-user state directory for runs:
// $XDG_STATE_HOME/rum/runs, falling back to ~/.local/state/rum/runs, or
// ~/Library/Application Support/rum/runs on macOS.
func DefaultRunsDir() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); filepath.IsAbs(dir) {
		return filepath.Join(dir, appName, "runs"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", appName, "runs"), nil
	}
	return filepath.Join(home, ".local", "state", appName, "runs"), nil
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/rum/config.toml, falling back
// to the platform's user config directory.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); filepath.IsAbs(dir) {
		return filepath.Join(dir, appName, "config.toml"), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving config directory: %w", err)
	}
	return filepath.Join(dir, appName, "config.toml"), nil
}
