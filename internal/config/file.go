package config

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/muurk/lifxlan/internal/field"
)

const (
	appName    = "lifxlan"
	configFile = "config.yaml"
)

// Mutex for thread-safe file operations
var fileMutex sync.Mutex

// GetConfigDir returns the OS-appropriate configuration directory for the application.
// This follows platform conventions:
//   - Linux: $XDG_CONFIG_HOME/lifxlan or $HOME/.config/lifxlan
//   - macOS: $HOME/.config/lifxlan (following XDG convention on macOS)
//   - Windows: %LOCALAPPDATA%\lifxlan
func GetConfigDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			userProfile := os.Getenv("USERPROFILE")
			if userProfile == "" {
				return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
			}
			baseDir = filepath.Join(userProfile, "AppData", "Local", appName)
		} else {
			baseDir = filepath.Join(localAppData, appName)
		}

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".config", appName)

	default:
		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome != "" {
			baseDir = filepath.Join(xdgConfigHome, appName)
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("cannot determine home directory: %w", err)
			}
			baseDir = filepath.Join(homeDir, ".config", appName)
		}
	}

	return baseDir, nil
}

// GetConfigPath returns the full path to the default configuration file.
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFile), nil
}

func resolvePath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	p, err := GetConfigPath()
	if err != nil {
		return "", fmt.Errorf("failed to get config path: %w", err)
	}
	return p, nil
}

// Load reads the configuration at path, or the default path when path is
// empty. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	path, err := resolvePath(path)
	if err != nil {
		return nil, err
	}

	fileMutex.Lock()
	defer fileMutex.Unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	// Start from defaults so sections missing from the file keep them.
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version: %d (expected %d)", cfg.Version, CurrentVersion)
	}

	bulbs := make(map[string]*Bulb, len(cfg.Bulbs))
	for key, b := range cfg.Bulbs {
		addr, err := field.ParseAddress(key)
		if err != nil {
			return nil, fmt.Errorf("bulbs: %w", err)
		}
		if b == nil {
			b = &Bulb{}
		}
		bulbs[bulbKey(addr)] = b
	}
	cfg.Bulbs = bulbs

	return cfg, nil
}

// Validate checks value ranges and address syntax.
func (c *Config) Validate() error {
	var errs []error

	if _, err := netip.ParseAddr(c.Discovery.BroadcastAddress); err != nil {
		errs = append(errs, fmt.Errorf("discovery.broadcast_address: %w", err))
	}
	if c.Discovery.Port <= 0 || c.Discovery.Port > 65535 {
		errs = append(errs, fmt.Errorf("discovery.port: %d out of range", c.Discovery.Port))
	}
	if c.Discovery.Interval <= 0 {
		errs = append(errs, errors.New("discovery.interval must be positive"))
	}
	if c.Discovery.MDNS && c.Discovery.MDNSTimeout <= 0 {
		errs = append(errs, errors.New("discovery.mdns_timeout must be positive"))
	}
	if c.Connection.DialTimeout < 0 {
		errs = append(errs, errors.New("connection.dial_timeout must not be negative"))
	}
	if c.Connection.ResponseTimeout <= 0 {
		errs = append(errs, errors.New("connection.response_timeout must be positive"))
	}
	if c.Connection.Fade < 0 {
		errs = append(errs, errors.New("connection.fade must not be negative"))
	}

	for i, h := range c.Hubs {
		if err := validateHostPort(h.Address); err != nil {
			errs = append(errs, fmt.Errorf("hubs[%d].address: %w", i, err))
		}
		if h.Site != "" {
			if _, err := field.ParseAddress(h.Site); err != nil {
				errs = append(errs, fmt.Errorf("hubs[%d].site: %w", i, err))
			}
		}
	}

	if c.Bridge.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Bridge.Listen); err != nil {
			errs = append(errs, fmt.Errorf("bridge.listen: %w", err))
		}
	}

	return errors.Join(errs...)
}

func validateHostPort(s string) error {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return err
	}
	if host == "" {
		return errors.New("missing host")
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}

// Save writes the configuration to path, or the default path when path is
// empty. Performs an atomic write to prevent corruption on crash.
func (c *Config) Save(path string) error {
	path, err := resolvePath(path)
	if err != nil {
		return err
	}

	fileMutex.Lock()
	defer fileMutex.Unlock()

	// Create directory with user-only permissions (0700)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := marshalConfig(c)
	if err != nil {
		return err
	}

	header := []byte(`# lifxlan configuration file
# Durations use Go syntax (500ms, 1s, 2m). Bulbs are keyed by device address.
#
# Location: ` + path + `

`)
	data = append(header, data...)

	// Write to temporary file first (atomic write)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		// Clean up temp file on error
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}

	return nil
}

func marshalConfig(c *Config) ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// CreateDefault writes a default configuration with an example static hub
// and bulb nickname. It refuses to overwrite an existing file.
func CreateDefault(path string) (string, error) {
	path, err := resolvePath(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("config file already exists: %s", path)
	}

	cfg := Default()
	cfg.AddHub("192.168.1.20:56700", "d0:73:d5:00:00:01")
	cfg.SetBulbNickname(field.Address{0xd0, 0x73, 0xd5, 0x00, 0x00, 0x02}, "Example Lamp")
	return path, cfg.Save(path)
}
