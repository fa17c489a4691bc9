// Package config provides XDG path helpers.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

const appDir = "sp"

// XDGConfigHome returns the XDG config home or a default fallback.
func XDGConfigHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".config")
}

// XDGDataHome returns the XDG data home or a default fallback.
func XDGDataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".local", "share")
}

// DefaultDataDir returns the directory event logs are written to.
func DefaultDataDir() string {
	return filepath.Join(XDGDataHome(), appDir, "experiment_data")
}

// DefaultDBPath returns the default path for the SQLite catalog.
func DefaultDBPath() string {
	return filepath.Join(XDGDataHome(), appDir, "sp.db")
}

// DefaultConfigPath returns the default TOML config path.
func DefaultConfigPath() string {
	return filepath.Join(XDGConfigHome(), appDir, "config.toml")
}

// LogFileName is the event log name of a subject.
func LogFileName(subject string) string {
	return "sub-" + subject + "_task-sp_events.tsv"
}

// SubjectFromLogName extracts the subject id from an event log file name.
func SubjectFromLogName(path string) (string, bool) {
	name := filepath.Base(path)
	const prefix, suffix = "sub-", "_task-sp_events.tsv"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return "", false
	}
	subject := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
	return subject, subject != ""
}
