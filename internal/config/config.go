// Package config loads magwarm settings from a YAML file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/magwarm/internal/ble"
)

// Config holds all application configuration.
type Config struct {
	DeviceID string         `yaml:"device_id"`
	BLE      BLEConfig      `yaml:"ble"`
	Poll     PollConfig     `yaml:"poll"`
	Commands CommandsConfig `yaml:"commands"`
	Platform PlatformConfig `yaml:"platform"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	LogLevel string         `yaml:"log_level"`
}

// BLEConfig holds radio and GATT settings.
type BLEConfig struct {
	ServiceUUID        string        `yaml:"service_uuid"`
	CharacteristicUUID string        `yaml:"characteristic_uuid"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	ScanWindow         time.Duration `yaml:"scan_window"`
	ReconnectAttempts  int           `yaml:"reconnect_attempts"`
	PayloadEncoding    string        `yaml:"payload_encoding"` // "raw" or "base64"
}

// PollConfig holds status polling settings.
type PollConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// CommandsConfig holds command and local-state settings.
type CommandsConfig struct {
	OnFailure string `yaml:"on_failure"` // "keep" or "revert"
	TargetMin int    `yaml:"target_min"`
	TargetMax int    `yaml:"target_max"`
}

// PlatformConfig selects the permission rules. An empty OS means the host OS.
type PlatformConfig struct {
	OS       string `yaml:"os"`
	APILevel int    `yaml:"api_level"`
}

// MetricsConfig holds the Prometheus endpoint address. Empty disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "magwarm")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		BLE: BLEConfig{
			ServiceUUID:        ble.ServiceUUID,
			CharacteristicUUID: ble.CharacteristicUUID,
			ConnectTimeout:     20 * time.Second,
			ScanWindow:         time.Second,
			ReconnectAttempts:  1,
			PayloadEncoding:    "raw",
		},
		Poll: PollConfig{
			Interval: 5 * time.Second,
		},
		Commands: CommandsConfig{
			OnFailure: "keep",
			TargetMin: 30,
			TargetMax: 60,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in path is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandTilde(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.DeviceID = strings.TrimSpace(cfg.DeviceID)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.BLE.ServiceUUID == "" {
		return fmt.Errorf("ble.service_uuid must not be empty")
	}
	if c.BLE.CharacteristicUUID == "" {
		return fmt.Errorf("ble.characteristic_uuid must not be empty")
	}
	if c.BLE.ConnectTimeout <= 0 {
		return fmt.Errorf("ble.connect_timeout must be > 0")
	}
	if c.BLE.ScanWindow <= 0 {
		return fmt.Errorf("ble.scan_window must be > 0")
	}
	if c.BLE.ReconnectAttempts < 0 {
		return fmt.Errorf("ble.reconnect_attempts must be >= 0, got %d", c.BLE.ReconnectAttempts)
	}

	switch c.BLE.PayloadEncoding {
	case "raw", "base64":
	default:
		return fmt.Errorf("ble.payload_encoding must be \"raw\" or \"base64\", got %q", c.BLE.PayloadEncoding)
	}

	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be > 0")
	}

	switch c.Commands.OnFailure {
	case "keep", "revert":
	default:
		return fmt.Errorf("commands.on_failure must be \"keep\" or \"revert\", got %q", c.Commands.OnFailure)
	}

	if c.Commands.TargetMin < 0 || c.Commands.TargetMin > c.Commands.TargetMax {
		return fmt.Errorf("commands.target_min (%d) must be between 0 and target_max (%d)", c.Commands.TargetMin, c.Commands.TargetMax)
	}

	if c.Platform.APILevel < 0 {
		return fmt.Errorf("platform.api_level must be >= 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a log_level value to a slog level. Unknown values
// fall back to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
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

const defaultConfigTemplate = `# magwarm configuration
# Identifier of the warmer to connect to. Leave empty to pick one with -scan or -qr.
device_id: ""

ble:
  service_uuid: %q
  characteristic_uuid: %q
  connect_timeout: %s
  scan_window: %s
  # Reconnects tried after each unexpected disconnect. 0 disables.
  reconnect_attempts: %d
  # "raw" sends UTF-8 bytes, "base64" sends base64 text.
  payload_encoding: %s

poll:
  interval: %s

commands:
  # "keep" leaves the requested value on screen after a failed write, "revert" restores it.
  on_failure: %s
  target_min: %d
  target_max: %d

platform:
  # Empty uses the host OS. Set os: android and api_level for Android builds.
  os: ""
  api_level: 0

metrics:
  # e.g. ":9273". Empty disables the /metrics endpoint.
  listen: ""

log_level: %s
`

// WriteDefault writes the default config to DefaultConfigPath. It returns
// ("", nil) without touching anything if a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	d := Default()
	content := fmt.Sprintf(defaultConfigTemplate,
		d.BLE.ServiceUUID, d.BLE.CharacteristicUUID,
		d.BLE.ConnectTimeout, d.BLE.ScanWindow,
		d.BLE.ReconnectAttempts, d.BLE.PayloadEncoding,
		d.Poll.Interval,
		d.Commands.OnFailure, d.Commands.TargetMin, d.Commands.TargetMax,
		d.LogLevel,
	)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
