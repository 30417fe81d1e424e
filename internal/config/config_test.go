package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/magwarm/internal/ble"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.DeviceID != "" {
		t.Errorf("DeviceID = %q, want empty", cfg.DeviceID)
	}
	if cfg.BLE.ServiceUUID != ble.ServiceUUID {
		t.Errorf("BLE.ServiceUUID = %q, want %q", cfg.BLE.ServiceUUID, ble.ServiceUUID)
	}
	if cfg.BLE.CharacteristicUUID != ble.CharacteristicUUID {
		t.Errorf("BLE.CharacteristicUUID = %q, want %q", cfg.BLE.CharacteristicUUID, ble.CharacteristicUUID)
	}
	if cfg.BLE.ConnectTimeout != 20*time.Second {
		t.Errorf("BLE.ConnectTimeout = %v, want 20s", cfg.BLE.ConnectTimeout)
	}
	if cfg.BLE.ScanWindow != time.Second {
		t.Errorf("BLE.ScanWindow = %v, want 1s", cfg.BLE.ScanWindow)
	}
	if cfg.BLE.ReconnectAttempts != 1 {
		t.Errorf("BLE.ReconnectAttempts = %d, want 1", cfg.BLE.ReconnectAttempts)
	}
	if cfg.BLE.PayloadEncoding != "raw" {
		t.Errorf("BLE.PayloadEncoding = %q, want %q", cfg.BLE.PayloadEncoding, "raw")
	}
	if cfg.Poll.Interval != 5*time.Second {
		t.Errorf("Poll.Interval = %v, want 5s", cfg.Poll.Interval)
	}
	if cfg.Commands.OnFailure != "keep" {
		t.Errorf("Commands.OnFailure = %q, want %q", cfg.Commands.OnFailure, "keep")
	}
	if cfg.Commands.TargetMin != 30 || cfg.Commands.TargetMax != 60 {
		t.Errorf("Commands target range = %d..%d, want 30..60", cfg.Commands.TargetMin, cfg.Commands.TargetMax)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
device_id: " AA:BB:CC:DD:EE:FF "
ble:
  connect_timeout: 5s
  scan_window: 3s
  reconnect_attempts: 0
  payload_encoding: base64
poll:
  interval: 1500ms
commands:
  on_failure: revert
  target_min: 35
  target_max: 55
platform:
  os: android
  api_level: 33
metrics:
  listen: ":9273"
log_level: debug
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DeviceID != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("DeviceID = %q, want trimmed identifier", cfg.DeviceID)
	}
	if cfg.BLE.ConnectTimeout != 5*time.Second {
		t.Errorf("BLE.ConnectTimeout = %v, want 5s", cfg.BLE.ConnectTimeout)
	}
	if cfg.BLE.ScanWindow != 3*time.Second {
		t.Errorf("BLE.ScanWindow = %v, want 3s", cfg.BLE.ScanWindow)
	}
	if cfg.BLE.ReconnectAttempts != 0 {
		t.Errorf("BLE.ReconnectAttempts = %d, want 0", cfg.BLE.ReconnectAttempts)
	}
	if cfg.BLE.PayloadEncoding != "base64" {
		t.Errorf("BLE.PayloadEncoding = %q, want %q", cfg.BLE.PayloadEncoding, "base64")
	}
	if cfg.Poll.Interval != 1500*time.Millisecond {
		t.Errorf("Poll.Interval = %v, want 1.5s", cfg.Poll.Interval)
	}
	if cfg.Commands.OnFailure != "revert" {
		t.Errorf("Commands.OnFailure = %q, want %q", cfg.Commands.OnFailure, "revert")
	}
	if cfg.Commands.TargetMin != 35 || cfg.Commands.TargetMax != 55 {
		t.Errorf("Commands target range = %d..%d, want 35..55", cfg.Commands.TargetMin, cfg.Commands.TargetMax)
	}
	if cfg.Platform.OS != "android" || cfg.Platform.APILevel != 33 {
		t.Errorf("Platform = %+v, want android/33", cfg.Platform)
	}
	if cfg.Metrics.Listen != ":9273" {
		t.Errorf("Metrics.Listen = %q, want %q", cfg.Metrics.Listen, ":9273")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	// Untouched keys keep their defaults.
	if cfg.BLE.ServiceUUID != ble.ServiceUUID {
		t.Errorf("BLE.ServiceUUID = %q, want default", cfg.BLE.ServiceUUID)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	if err := os.WriteFile(filepath.Join(tmpHome, "magwarm.yaml"), []byte("device_id: dev-1\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load("~/magwarm.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DeviceID != "dev-1" {
		t.Errorf("DeviceID = %q, want %q", cfg.DeviceID, "dev-1")
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("poll:\n  interval: soon\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Error("Load() should reject an unparseable duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid default", func(c *Config) {}, ""},
		{"empty service uuid", func(c *Config) { c.BLE.ServiceUUID = "" }, "ble.service_uuid"},
		{"empty characteristic uuid", func(c *Config) { c.BLE.CharacteristicUUID = "" }, "ble.characteristic_uuid"},
		{"zero connect timeout", func(c *Config) { c.BLE.ConnectTimeout = 0 }, "ble.connect_timeout"},
		{"zero scan window", func(c *Config) { c.BLE.ScanWindow = 0 }, "ble.scan_window"},
		{"negative reconnects", func(c *Config) { c.BLE.ReconnectAttempts = -1 }, "ble.reconnect_attempts"},
		{"bad encoding", func(c *Config) { c.BLE.PayloadEncoding = "hex" }, "ble.payload_encoding"},
		{"zero poll interval", func(c *Config) { c.Poll.Interval = 0 }, "poll.interval"},
		{"bad failure policy", func(c *Config) { c.Commands.OnFailure = "retry" }, "commands.on_failure"},
		{"inverted target range", func(c *Config) { c.Commands.TargetMin = 70 }, "commands.target_min"},
		{"negative api level", func(c *Config) { c.Platform.APILevel = -1 }, "platform.api_level"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
		{"base64 encoding", func(c *Config) { c.BLE.PayloadEncoding = "base64" }, ""},
		{"no reconnects", func(c *Config) { c.BLE.ReconnectAttempts = 0 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	// Use a temp dir as fake home to avoid touching real config
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "magwarm", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# magwarm") {
		t.Error("written config should start with header comment")
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(written) error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("written config fails validation: %v", err)
	}
	if cfg.BLE.ConnectTimeout != 20*time.Second {
		t.Errorf("written config BLE.ConnectTimeout = %v, want 20s", cfg.BLE.ConnectTimeout)
	}
	if cfg.Commands.TargetMax != 60 {
		t.Errorf("written config Commands.TargetMax = %d, want 60", cfg.Commands.TargetMax)
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "magwarm")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existingContent := []byte("device_id: custom\n")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, existingContent, 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty string for existing file", path)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(data) != string(existingContent) {
		t.Error("WriteDefault() should not overwrite existing config file")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
