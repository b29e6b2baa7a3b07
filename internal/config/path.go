package config

import (
	"os"
	"path/filepath"
)

// ConfigDir returns the default config directory path.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "sefs")
}

// DefaultConfigPath returns the default path for the config file.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// GlobalDBPath returns the path of the global settings database.
func GlobalDBPath() string {
	return filepath.Join(ConfigDir(), "sefs.db")
}

// EnsureConfigDir creates the config directory with 0700 permissions.
func EnsureConfigDir() error {
	return os.MkdirAll(ConfigDir(), 0700)
}

// RootPath returns the configured root folder with ~ expanded and the
// path made absolute.
func (c *Config) RootPath() string {
	p := expandHome(c.RootFolder)
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

// LogFilePath returns the configured log file path with ~ expanded.
func (c *Config) LogFilePath() string {
	return expandHome(c.LogFile)
}

// expandHome expands a leading ~ in path to the user's home directory.
// Only expands "~" alone or "~/..." patterns. Patterns like "~user" are not expanded.
// Returns the path unchanged if it doesn't start with ~/ or if home dir cannot be determined.
func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}

	if len(path) > 1 && path[1] != '/' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if len(path) == 1 {
		return home
	}

	return filepath.Join(home, path[2:])
}
