package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/muurk/lifxlan/internal/field"
)

var lamp = field.Address{0xd0, 0x73, 0xd5, 0x10, 0x20, 0x30}

func TestGetConfigDir(t *testing.T) {
	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	if !strings.Contains(configDir, "lifxlan") {
		t.Errorf("GetConfigDir() = %v, should contain 'lifxlan'", configDir)
	}

	switch runtime.GOOS {
	case "windows":
		if !strings.Contains(configDir, "AppData") && !strings.Contains(configDir, "Local") {
			t.Errorf("Windows config dir should contain 'AppData' or 'Local', got: %v", configDir)
		}
	case "darwin":
		if !strings.Contains(configDir, ".config") {
			t.Errorf("macOS config dir should contain '.config', got: %v", configDir)
		}
	}
}

func TestGetConfigDirXDG(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("XDG_CONFIG_HOME only applies to other Unix systems")
	}
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if want := filepath.Join("/tmp/xdg", "lifxlan", "config.yaml"); configPath != want {
		t.Errorf("GetConfigPath() = %v, want %v", configPath, want)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Version != CurrentVersion {
		t.Errorf("Default().Version = %v, want %v", cfg.Version, CurrentVersion)
	}
	if cfg.Discovery.Port != 56700 {
		t.Errorf("Default().Discovery.Port = %v, want 56700", cfg.Discovery.Port)
	}
	if cfg.Discovery.Interval.Std() != time.Second {
		t.Errorf("Default().Discovery.Interval = %v, want 1s", cfg.Discovery.Interval.Std())
	}
	if cfg.Connection.Fade.Std() != time.Second {
		t.Errorf("Default().Connection.Fade = %v, want 1s", cfg.Connection.Fade.Std())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v, want nil", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Bridge.Listen != ":8080" {
		t.Errorf("Bridge.Listen = %q, want ':8080'", cfg.Bridge.Listen)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Discovery.Interval = Duration(1500 * time.Millisecond)
	cfg.AddHub("10.0.0.2:56700", "d0:73:d5:00:00:01")
	cfg.SetBulbNickname(lamp, "Kitchen")
	seen := time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)
	cfg.UpdateBulbLastSeen(lamp, "10.0.0.2:56700", seen)

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind after Save()")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(raw), "interval: 1.5s") {
		t.Errorf("durations should be written as strings, got:\n%s", raw)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Discovery.Interval.Std() != 1500*time.Millisecond {
		t.Errorf("Interval = %v, want 1.5s", loaded.Discovery.Interval.Std())
	}
	if len(loaded.Hubs) != 1 || loaded.Hubs[0].Address != "10.0.0.2:56700" {
		t.Errorf("Hubs = %+v, want one hub at 10.0.0.2:56700", loaded.Hubs)
	}
	bulb := loaded.GetBulb(lamp)
	if bulb == nil {
		t.Fatal("bulb should exist in loaded config")
	}
	if bulb.Nickname != "Kitchen" {
		t.Errorf("Nickname = %q, want 'Kitchen'", bulb.Nickname)
	}
	if !bulb.LastSeen.Equal(seen) {
		t.Errorf("LastSeen = %v, want %v", bulb.LastSeen, seen)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "version: 1\nconnection:\n  response_timeout: 750ms\nbulbs:\n  D0:73:D5:10:20:30:\n    nickname: Desk\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Connection.ResponseTimeout.Std() != 750*time.Millisecond {
		t.Errorf("ResponseTimeout = %v, want 750ms", cfg.Connection.ResponseTimeout.Std())
	}
	if cfg.Connection.DialTimeout.Std() != 5*time.Second {
		t.Errorf("DialTimeout = %v, want default 5s", cfg.Connection.DialTimeout.Std())
	}
	if cfg.Nickname(lamp) != "Desk" {
		t.Errorf("upper-case bulb key not normalised: Nickname() = %q", cfg.Nickname(lamp))
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"wrong version", "version: 2\n", "unsupported config version"},
		{"bad duration", "version: 1\ndiscovery:\n  interval: soon\n", "invalid duration"},
		{"bad bulb key", "version: 1\nbulbs:\n  kitchen:\n    nickname: x\n", "invalid device address"},
		{"not yaml", "version: [1\n", "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.data), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"broadcast", func(c *Config) { c.Discovery.BroadcastAddress = "everyone" }, "broadcast_address"},
		{"port", func(c *Config) { c.Discovery.Port = 70000 }, "discovery.port"},
		{"interval", func(c *Config) { c.Discovery.Interval = 0 }, "interval"},
		{"mdns timeout", func(c *Config) { c.Discovery.MDNS = true; c.Discovery.MDNSTimeout = 0 }, "mdns_timeout"},
		{"response timeout", func(c *Config) { c.Connection.ResponseTimeout = 0 }, "response_timeout"},
		{"hub address", func(c *Config) { c.AddHub("10.0.0.2", "") }, "hubs[0].address"},
		{"hub site", func(c *Config) { c.AddHub("10.0.0.2:56700", "zz") }, "hubs[0].site"},
		{"bridge", func(c *Config) { c.Bridge.Listen = "8080" }, "bridge.listen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestResolveBulb(t *testing.T) {
	cfg := Default()
	cfg.SetBulbNickname(lamp, "Kitchen")

	tests := []struct {
		in      string
		want    field.Address
		wantErr bool
	}{
		{"d0:73:d5:10:20:30", lamp, false},
		{"D073D5102030", lamp, false},
		{"kitchen", lamp, false},
		{"KITCHEN", lamp, false},
		{"Hall", field.Address{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := cfg.ResolveBulb(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveBulb(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ResolveBulb(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAddHubDeduplicates(t *testing.T) {
	cfg := Default()
	if !cfg.AddHub("10.0.0.2:56700", "") {
		t.Error("first AddHub() = false, want true")
	}
	if cfg.AddHub("10.0.0.2:56700", "d0:73:d5:00:00:01") {
		t.Error("second AddHub() = true, want false")
	}
	if len(cfg.Hubs) != 1 {
		t.Errorf("len(Hubs) = %d, want 1", len(cfg.Hubs))
	}
}

func TestCreateDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	got, err := CreateDefault(path)
	if err != nil {
		t.Fatalf("CreateDefault() error = %v", err)
	}
	if got != path {
		t.Errorf("CreateDefault() path = %v, want %v", got, path)
	}
	if _, err := CreateDefault(path); err == nil {
		t.Error("CreateDefault() should refuse to overwrite")
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default file does not validate: %v", err)
	}
}
