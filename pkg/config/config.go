// Package config loads daemon settings from a TOML file with sane
// defaults for every knob, so a missing or partial file is never an
// error.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"reviewgate/pkg/detect"
)

// EnvConfigPath overrides the config file location when set.
const EnvConfigPath = "REVIEW_GATE_CONFIG"

// Duration is a time.Duration that unmarshals from TOML strings like
// "150ms" or "30s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Detector configures trigger detection.
type Detector struct {
	Mode         string   `toml:"mode"` // "auto", "watch", or "poll"
	Debounce     Duration `toml:"debounce"`
	PollInterval Duration `toml:"poll_interval"`
}

// Monitor configures connection-health checking.
type Monitor struct {
	ActiveThreshold Duration `toml:"active_threshold"`
	CacheTTL        Duration `toml:"cache_ttl"`
	Tick            Duration `toml:"tick"`
}

// Retry configures the backoff policy for I/O and dispatch.
type Retry struct {
	Attempts   int      `toml:"attempts"`
	Delay      Duration `toml:"delay"`
	Multiplier float64  `toml:"multiplier"`
	MaxDelay   Duration `toml:"max_delay"`
}

// Client configures the agent-side exchange leg.
type Client struct {
	AckTimeout        Duration `toml:"ack_timeout"`
	ResponseTimeout   Duration `toml:"response_timeout"`
	HeartbeatInterval Duration `toml:"heartbeat_interval"`
}

// Config is the full daemon configuration.
type Config struct {
	Dir       string   `toml:"dir"`        // gate directory; empty means the platform default
	LogLevel  string   `toml:"log_level"`  // "debug", "info", "warn", "error"
	DedupeTTL Duration `toml:"dedupe_ttl"` // how long a trigger ID stays deduplicated
	Rescan    Duration `toml:"rescan"`     // fallback scan cadence for the gate loop
	Detector  Detector `toml:"detector"`
	Monitor   Monitor  `toml:"monitor"`
	Retry     Retry    `toml:"retry"`
	Client    Client   `toml:"client"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		LogLevel:  "info",
		DedupeTTL: Duration(10 * time.Minute),
		Rescan:    Duration(5 * time.Second),
		Detector: Detector{
			Mode:         string(detect.ModeAuto),
			Debounce:     Duration(100 * time.Millisecond),
			PollInterval: Duration(500 * time.Millisecond),
		},
		Monitor: Monitor{
			ActiveThreshold: Duration(30 * time.Second),
			CacheTTL:        Duration(1500 * time.Millisecond),
			Tick:            Duration(5 * time.Second),
		},
		Retry: Retry{
			Attempts:   3,
			Delay:      Duration(100 * time.Millisecond),
			Multiplier: 2,
			MaxDelay:   Duration(5 * time.Second),
		},
		Client: Client{
			AckTimeout:        Duration(30 * time.Second),
			ResponseTimeout:   Duration(5 * time.Minute),
			HeartbeatInterval: Duration(10 * time.Second),
		},
	}
}

// Load reads the TOML file at path, layering it over the defaults. An
// empty path falls back to the REVIEW_GATE_CONFIG environment variable;
// if that is empty too, or the file does not exist, the defaults are
// returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch detect.Mode(c.Detector.Mode) {
	case detect.ModeAuto, detect.ModeWatch, detect.ModePoll:
	default:
		return fmt.Errorf("unknown detector mode %q", c.Detector.Mode)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1, got %d", c.Retry.Attempts)
	}
	return nil
}
