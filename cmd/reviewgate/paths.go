package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths holds all resolved reviewgate state file paths.
// Use ResolvePaths() to populate this struct with defaults + env overrides.
type Paths struct {
	Home        string // ~/.reviewgate or REVIEW_GATE_HOME
	EventDBPath string // events.db or REVIEW_GATE_DB_PATH
}

// ResolvePaths returns all reviewgate paths, respecting env var overrides.
// Environment variables:
//   - REVIEW_GATE_HOME: base directory for state (default: ~/.reviewgate)
//   - REVIEW_GATE_DB_PATH: event database (default: $REVIEW_GATE_HOME/events.db)
func ResolvePaths() (*Paths, error) {
	home, err := resolveHome()
	if err != nil {
		return nil, err
	}

	return &Paths{
		Home:        home,
		EventDBPath: resolvePathWithEnv("REVIEW_GATE_DB_PATH", home, "events.db"),
	}, nil
}

// resolveHome returns the state directory from REVIEW_GATE_HOME or ~/.reviewgate.
func resolveHome() (string, error) {
	if v := os.Getenv("REVIEW_GATE_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".reviewgate"), nil
}

// resolvePathWithEnv returns the path from envKey if set, otherwise joins base + suffix.
func resolvePathWithEnv(envKey, base, suffix string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return filepath.Join(base, suffix)
}
