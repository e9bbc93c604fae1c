package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Watch    WatchConfig   `yaml:"watch"`
	OSC      OSCConfig     `yaml:"osc"`
	Gesture  GestureConfig `yaml:"gesture"`
	LogLevel string        `yaml:"log_level"`
}

// WatchConfig holds connection settings for the wearable.
type WatchConfig struct {
	NameFilter     string `yaml:"name_filter"`   // substring match on advertised name, empty matches any
	ScanTimeoutSec int    `yaml:"scan_timeout"`  // seconds per scan attempt
	ReconnectMax   int    `yaml:"reconnect_max"` // max reconnect backoff in seconds
	ClientName     string `yaml:"client_name"`   // name shown on the watch's approval prompt
}

// OSCConfig holds the UDP endpoints of the bridge.
type OSCConfig struct {
	Host       string `yaml:"host"`
	ClientPort int    `yaml:"client_port"` // outbound events
	ServerPort int    `yaml:"server_port"` // inbound /vib messages
}

// GestureConfig holds classifier tuning.
type GestureConfig struct {
	TapTimeoutMs   int     `yaml:"tap_timeout_ms"`  // multi-tap grouping window
	FlickDelayMs   int     `yaml:"flick_delay_ms"`  // post-tap accumulation window
	FlickScale     float64 `yaml:"flick_scale"`     // displacement gain
	FlickThreshold float64 `yaml:"flick_threshold"` // displacement needed to classify
	LeftHanded     bool    `yaml:"left_handed"`
	ScreenRotated  bool    `yaml:"screen_rotated"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "watchkit")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Watch: WatchConfig{
			ScanTimeoutSec: 30,
			ReconnectMax:   30,
			ClientName:     "watchkit",
		},
		OSC: OSCConfig{
			Host:       "127.0.0.1",
			ClientPort: 9000,
			ServerPort: 9001,
		},
		Gesture: GestureConfig{
			TapTimeoutMs:   500,
			FlickDelayMs:   100,
			FlickScale:     6,
			FlickThreshold: 30,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Watch.ScanTimeoutSec <= 0 {
		return fmt.Errorf("watch.scan_timeout must be > 0")
	}

	if c.Watch.ReconnectMax <= 0 {
		return fmt.Errorf("watch.reconnect_max must be > 0")
	}

	if c.OSC.Host == "" {
		return fmt.Errorf("osc.host must not be empty")
	}

	if err := validPort("osc.client_port", c.OSC.ClientPort); err != nil {
		return err
	}
	if err := validPort("osc.server_port", c.OSC.ServerPort); err != nil {
		return err
	}
	if c.OSC.ClientPort == c.OSC.ServerPort {
		return fmt.Errorf("osc.client_port and osc.server_port must differ, both are %d", c.OSC.ClientPort)
	}

	if c.Gesture.TapTimeoutMs <= 0 {
		return fmt.Errorf("gesture.tap_timeout_ms must be > 0")
	}

	if c.Gesture.FlickDelayMs <= 0 {
		return fmt.Errorf("gesture.flick_delay_ms must be > 0")
	}

	if c.Gesture.FlickScale <= 0 {
		return fmt.Errorf("gesture.flick_scale must be > 0")
	}

	if c.Gesture.FlickThreshold <= 0 {
		return fmt.Errorf("gesture.flick_threshold must be > 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ScanTimeout returns the scan timeout as a duration.
func (c *WatchConfig) ScanTimeout() time.Duration {
	return time.Duration(c.ScanTimeoutSec) * time.Second
}

// TapTimeout returns the multi-tap window as a duration.
func (c *GestureConfig) TapTimeout() time.Duration {
	return time.Duration(c.TapTimeoutMs) * time.Millisecond
}

// FlickDelay returns the flick accumulation window as a duration.
func (c *GestureConfig) FlickDelay() time.Duration {
	return time.Duration(c.FlickDelayMs) * time.Millisecond
}

// SlogLevel maps the configured log level onto slog. Unknown values
// fall back to info; Validate rejects them anyway.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultHeader = `# watchkit configuration
# Delete a key to fall back to its built-in default.
`

// WriteDefault writes a commented default config to the default path
// if none exists yet. Returns the written path, or "" when a config
// file was already present.
func WriteDefault() (string, error) {
	dir := DefaultConfigDir()
	if dir == "" {
		return "", fmt.Errorf("cannot determine home directory")
	}
	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("marshaling default config: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing default config: %w", err)
	}
	return path, nil
}

func validPort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be in [1, 65535], got %d", name, port)
	}
	return nil
}
