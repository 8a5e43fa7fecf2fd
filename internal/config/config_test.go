package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Device.Address = "DD:DA:EC:63:26:E0"
	return cfg
}

func TestDefaultIsValidOnceAddressSet(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted a config without a device address")
	}

	cfg.Device.Address = "DD:DA:EC:63:26:E0"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate on defaults with address = %v, want nil", err)
	}
}

func TestDefaultCarriesVendorProtocolValues(t *testing.T) {
	cfg := Default()
	key, err := cfg.KeyBytes()
	if err != nil {
		t.Fatalf("KeyBytes error = %v", err)
	}
	if len(key) != 16 {
		t.Errorf("default key length = %d, want 16", len(key))
	}
	if !bytes.Equal(key[:4], []byte{0x34, 0x52, 0x2a, 0x5b}) {
		t.Errorf("default key prefix = %x, want 34522a5b", key[:4])
	}
	if cfg.Device.CharacteristicUUID != "0000ac52-1212-efde-1523-785fedbeda25" {
		t.Errorf("default characteristic UUID = %q", cfg.Device.CharacteristicUUID)
	}
}

func TestLoadMergesWithDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
device:
  address: "AA:BB:CC:DD:EE:FF"
queue:
  capacity: 64
log_level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}

	if cfg.Device.Address != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("address = %q", cfg.Device.Address)
	}
	if cfg.Queue.Capacity != 64 {
		t.Errorf("queue capacity = %d, want 64", cfg.Queue.Capacity)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug", cfg.LogLevel)
	}
	// Unset fields keep defaults.
	if cfg.Reconnect.MaxBackoffSeconds != 30 {
		t.Errorf("max backoff = %d, want default 30", cfg.Reconnect.MaxBackoffSeconds)
	}
	if cfg.Device.Key == "" {
		t.Error("default key lost during load")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config invalid: %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load accepted a missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load accepted malformed YAML")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"empty address", func(c *Config) { c.Device.Address = "" }, "device.address"},
		{"non-hex key", func(c *Config) { c.Device.Key = "not hex at all!" }, "device.key"},
		{"short key", func(c *Config) { c.Device.Key = "abcd" }, "device.key"},
		{"empty characteristic", func(c *Config) { c.Device.CharacteristicUUID = "" }, "characteristic_uuid"},
		{"zero queue capacity", func(c *Config) { c.Queue.Capacity = 0 }, "queue.capacity"},
		{"zero backoff", func(c *Config) { c.Reconnect.MaxBackoffSeconds = 0 }, "max_backoff_seconds"},
		{"zero failure threshold", func(c *Config) { c.Reconnect.FailureThreshold = 0 }, "failure_threshold"},
		{"zero health interval", func(c *Config) { c.Health.IntervalSeconds = 0 }, "interval_seconds"},
		{"zero write rate", func(c *Config) { c.Write.RatePerSecond = 0 }, "rate_per_second"},
		{"zero write burst", func(c *Config) { c.Write.Burst = 0 }, "burst"},
		{"empty listen", func(c *Config) { c.HTTP.Listen = "" }, "http.listen"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate accepted invalid config")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestKeyBytes(t *testing.T) {
	cfg := validConfig()
	cfg.Device.Key = "000102030405060708090a0b0c0d0e0f"
	key, err := cfg.KeyBytes()
	if err != nil {
		t.Fatalf("KeyBytes error = %v", err)
	}
	if len(key) != 16 || key[0] != 0 || key[15] != 0x0f {
		t.Errorf("KeyBytes = %x", key)
	}

	cfg.Device.Key = "00010203"
	if _, err := cfg.KeyBytes(); err == nil {
		t.Error("KeyBytes accepted an 4-byte key")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()
	if path == "" {
		t.Skip("no home directory in test environment")
	}
	if !strings.HasSuffix(path, filepath.Join("istrip-bridge", "config.yaml")) {
		t.Errorf("DefaultConfigPath = %q", path)
	}
}
