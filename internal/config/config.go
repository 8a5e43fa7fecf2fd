package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Queue     QueueConfig     `yaml:"queue"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Health    HealthConfig    `yaml:"health"`
	Write     WriteConfig     `yaml:"write"`
	HTTP      HTTPConfig      `yaml:"http"`
	LogLevel  string          `yaml:"log_level"`
}

// DeviceConfig identifies the target strip and its protocol parameters.
type DeviceConfig struct {
	// Address is the peripheral address: a MAC on Linux/BlueZ, a
	// CoreBluetooth UUID on macOS.
	Address string `yaml:"address"`
	// Key is the device's AES-128 key as a 32-character hex string.
	Key string `yaml:"key"`
	// ServiceUUID optionally narrows characteristic discovery; empty
	// searches all primary services.
	ServiceUUID string `yaml:"service_uuid"`
	// CharacteristicUUID is the control characteristic command frames are
	// written to.
	CharacteristicUUID string `yaml:"characteristic_uuid"`
}

// QueueConfig bounds the pending-command mailbox.
type QueueConfig struct {
	Capacity int `yaml:"capacity"`
}

// ReconnectConfig tunes the reconnect cycle.
type ReconnectConfig struct {
	MaxBackoffSeconds int `yaml:"max_backoff_seconds"`
	// FailureThreshold is the consecutive connect failures after which the
	// device is reported unreachable (retries continue regardless).
	FailureThreshold int `yaml:"failure_threshold"`
}

// HealthConfig tunes the periodic liveness read.
type HealthConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// WriteConfig rate-limits characteristic writes; the strip drops frames
// that arrive faster than its firmware processes them.
type WriteConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// HTTPConfig holds the HTTP API settings.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "istrip-bridge")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values. The key and
// characteristic UUID defaults are the iStrip+ vendor values; the device
// address always has to come from config or the command line.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Key:                "34522a5b7a6e492c08090a9d8d2a23f8",
			CharacteristicUUID: "0000ac52-1212-efde-1523-785fedbeda25",
		},
		Queue:     QueueConfig{Capacity: 32},
		Reconnect: ReconnectConfig{MaxBackoffSeconds: 30, FailureThreshold: 5},
		Health:    HealthConfig{IntervalSeconds: 15},
		Write:     WriteConfig{RatePerSecond: 20, Burst: 5},
		HTTP:      HTTPConfig{Listen: "0.0.0.0:5000"},
		LogLevel:  "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled with
// defaults.
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
	if c.Device.Address == "" {
		return fmt.Errorf("device.address must not be empty")
	}

	if _, err := c.KeyBytes(); err != nil {
		return err
	}

	if c.Device.CharacteristicUUID == "" {
		return fmt.Errorf("device.characteristic_uuid must not be empty")
	}

	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue.capacity must be > 0")
	}

	if c.Reconnect.MaxBackoffSeconds <= 0 {
		return fmt.Errorf("reconnect.max_backoff_seconds must be > 0")
	}

	if c.Reconnect.FailureThreshold <= 0 {
		return fmt.Errorf("reconnect.failure_threshold must be > 0")
	}

	if c.Health.IntervalSeconds <= 0 {
		return fmt.Errorf("health.interval_seconds must be > 0")
	}

	if c.Write.RatePerSecond <= 0 {
		return fmt.Errorf("write.rate_per_second must be > 0")
	}

	if c.Write.Burst <= 0 {
		return fmt.Errorf("write.burst must be > 0")
	}

	if c.HTTP.Listen == "" {
		return fmt.Errorf("http.listen must not be empty")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// KeyBytes decodes the hex device key.
func (c *Config) KeyBytes() ([]byte, error) {
	key, err := hex.DecodeString(c.Device.Key)
	if err != nil {
		return nil, fmt.Errorf("device.key must be hex: %w", err)
	}
	if len(key) != 16 {
		return nil, fmt.Errorf("device.key must be 16 bytes (32 hex chars), got %d bytes", len(key))
	}
	return key, nil
}
