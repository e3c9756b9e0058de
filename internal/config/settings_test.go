package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/muurk/relaynode/internal/clock"
)

func TestGetConfigDir(t *testing.T) {
	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	if !strings.Contains(configDir, "relaynode") {
		t.Errorf("GetConfigDir() = %v, should contain 'relaynode'", configDir)
	}

	switch runtime.GOOS {
	case "darwin", "linux":
		if os.Getenv("XDG_CONFIG_HOME") == "" && !strings.Contains(configDir, ".config") {
			t.Errorf("Unix config dir should contain '.config', got: %v", configDir)
		}
	}
}

func TestGetConfigDirXDG(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG_CONFIG_HOME is only honoured on Linux")
	}
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if configDir != "/tmp/xdg/relaynode" {
		t.Errorf("GetConfigDir() = %v, want /tmp/xdg/relaynode", configDir)
	}

	path, _ := GetConfigPath()
	if filepath.Base(path) != "settings.yaml" {
		t.Errorf("GetConfigPath() should end with 'settings.yaml', got: %v", path)
	}

	data, _ := DefaultSettings().DataPath()
	if data != "/tmp/xdg/relaynode/device.yaml" {
		t.Errorf("DataPath() = %v, want /tmp/xdg/relaynode/device.yaml", data)
	}
}

func TestDefaultSettingsValid(t *testing.T) {
	if errs := DefaultSettings().Validate(); len(errs) != 0 {
		t.Errorf("DefaultSettings().Validate() = %v, want no errors", errs)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Link.PingInterval != DefaultSettings().Link.PingInterval {
		t.Errorf("Link.PingInterval = %v, want default", s.Link.PingInterval)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")

	s := DefaultSettings()
	s.DataFile = "/var/lib/relaynode/device.yaml"
	s.Link.PingInterval = 20 * time.Second
	s.Provisioning.MQTTBroker = "tcp://broker.local:1883"
	s.Backend.Secret = "bench-secret"

	if err := s.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temporary file should not exist after successful save")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.HasPrefix(string(data), "# relaynode agent settings") {
		t.Error("Saved settings should start with the header comment")
	}
	if !strings.Contains(string(data), "ping_interval: 20s") {
		t.Errorf("Durations should be written as strings, got:\n%s", data)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DataFile != s.DataFile {
		t.Errorf("DataFile = %v, want %v", loaded.DataFile, s.DataFile)
	}
	if loaded.Link.PingInterval != 20*time.Second {
		t.Errorf("Link.PingInterval = %v, want 20s", loaded.Link.PingInterval)
	}
	if loaded.Provisioning.MQTTBroker != s.Provisioning.MQTTBroker {
		t.Errorf("MQTTBroker = %v, want %v", loaded.Provisioning.MQTTBroker, s.Provisioning.MQTTBroker)
	}
	if loaded.Backend.Secret != "bench-secret" {
		t.Errorf("Backend.Secret = %v, want bench-secret", loaded.Backend.Secret)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Stat() error = %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("Settings file permissions = %v, want 0600", info.Mode().Perm())
		}
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := "version: 1\nlink:\n  missed_pongs: 4\nprovisioning:\n  storage_dir: /mnt/card\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Link.MissedPongs != 4 {
		t.Errorf("Link.MissedPongs = %d, want 4", s.Link.MissedPongs)
	}
	if s.Provisioning.StorageDir != "/mnt/card" {
		t.Errorf("StorageDir = %q, want /mnt/card", s.Provisioning.StorageDir)
	}
	if s.Link.Path != "/esp32-ws" {
		t.Errorf("Link.Path = %q, want default /esp32-ws", s.Link.Path)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unsupported version", "version: 2\n"},
		{"invalid yaml", "version: [1\n"},
		{"bad duration", "version: 1\nlink:\n  ping_interval: soon\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "settings.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load() error = nil, want error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Settings)
		want   string
	}{
		{"relative path", func(s *Settings) { s.Link.Path = "esp32-ws" }, "link.path"},
		{"zero missed pongs", func(s *Settings) { s.Link.MissedPongs = 0 }, "missed_pongs"},
		{"max below initial", func(s *Settings) { s.Link.MaxBackoff = time.Millisecond }, "max_backoff"},
		{"zero limiter", func(s *Settings) { s.Link.LimiterCapacity = 0 }, "limiter_capacity"},
		{"zero retries", func(s *Settings) { s.Provisioning.MaxRetries = 0 }, "max_retries"},
		{"bad broker", func(s *Settings) { s.Provisioning.MQTTBroker = "broker.local" }, "mqtt_broker"},
		{"port out of range", func(s *Settings) { s.Backend.Port = 70000 }, "backend.port"},
		{"cert without key", func(s *Settings) { s.Backend.CertPath = "cert.pem" }, "cert_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.modify(s)

			errs := s.Validate()
			if len(errs) != 1 {
				t.Fatalf("Validate() = %v, want exactly one error", errs)
			}
			if !strings.Contains(errs[0].Error(), tt.want) {
				t.Errorf("Validate() error = %q, want mention of %q", errs[0], tt.want)
			}
		})
	}
}

func TestDerivedConfigs(t *testing.T) {
	s := DefaultSettings()
	s.Link.PingInterval = 7 * time.Second
	s.Link.ForwardBinary = true
	s.Link.LimiterCapacity = 2
	s.Provisioning.MaxRetries = 5

	if got := s.TransportConfig().PingInterval; got != 7*time.Second {
		t.Errorf("TransportConfig().PingInterval = %v, want 7s", got)
	}
	if !s.LinkConfig().ForwardBinary {
		t.Error("LinkConfig().ForwardBinary = false, want true")
	}
	if got := s.ProvisioningConfig().MaxRetries; got != 5 {
		t.Errorf("ProvisioningConfig().MaxRetries = %d, want 5", got)
	}
	if got := s.Limiter(clock.NewManual(0)).Capacity(); got != 2 {
		t.Errorf("Limiter().Capacity() = %d, want 2", got)
	}
}
