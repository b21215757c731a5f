package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"reviewgate/pkg/config"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := config.Default()
	if cfg.LogLevel != def.LogLevel || cfg.Retry.Attempts != def.Retry.Attempts {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadPartialFileLayersOverDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
log_level = "debug"

[detector]
mode = "poll"
poll_interval = "250ms"

[retry]
attempts = 5
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log_level = %q", cfg.LogLevel)
	}
	if cfg.Detector.Mode != "poll" || cfg.Detector.PollInterval.Std() != 250*time.Millisecond {
		t.Fatalf("detector = %+v", cfg.Detector)
	}
	if cfg.Retry.Attempts != 5 {
		t.Fatalf("retry attempts = %d", cfg.Retry.Attempts)
	}
	// Untouched sections keep their defaults.
	if cfg.Monitor.ActiveThreshold.Std() != 30*time.Second {
		t.Fatalf("active_threshold = %v", cfg.Monitor.ActiveThreshold.Std())
	}
	if cfg.Detector.Debounce.Std() != 100*time.Millisecond {
		t.Fatalf("debounce = %v", cfg.Detector.Debounce.Std())
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.toml")
	if err := os.WriteFile(path, []byte(`log_level = "warn"`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(config.EnvConfigPath, path)

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("log_level = %q", cfg.LogLevel)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		body string
	}{
		{"bad mode", "[detector]\nmode = \"inotify\"\n"},
		{"bad level", `log_level = "verbose"`},
		{"bad duration", "[monitor]\ntick = \"soon\"\n"},
		{"zero attempts", "[retry]\nattempts = 0\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "bad.toml")
			if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := config.Load(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
