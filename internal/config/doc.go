// Package config manages the lifxlan YAML configuration file.
//
// The file holds discovery and connection settings, statically known
// hubs, bulb nicknames, and the capture and bridge defaults. Command-line
// flags override what it contains.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/lifxlan/config.yaml or $HOME/.config/lifxlan/config.yaml
//   - macOS: $HOME/.config/lifxlan/config.yaml
//   - Windows: %LOCALAPPDATA%\lifxlan\config.yaml
//
// # Usage Example
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
//	cfg.SetBulbNickname(addr, "Kitchen")
//	if err := cfg.Save(""); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// File operations are protected by a mutex and Save writes atomically
// through a temporary file. A *Config itself is not safe for concurrent
// mutation.
package config
