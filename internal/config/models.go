package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/muurk/lifxlan/internal/field"
)

// CurrentVersion is the only config file version understood.
const CurrentVersion = 1

// Config represents the entire user configuration file.
type Config struct {
	Version    int              `yaml:"version"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Connection ConnectionConfig `yaml:"connection"`
	Hubs       []StaticHub      `yaml:"hubs,omitempty"`
	Bulbs      map[string]*Bulb `yaml:"bulbs,omitempty"` // Keyed by device address
	Capture    CaptureConfig    `yaml:"capture"`
	Bridge     BridgeConfig     `yaml:"bridge"`
}

// DiscoveryConfig controls the UDP broadcast and optional mDNS scan.
type DiscoveryConfig struct {
	BroadcastAddress string   `yaml:"broadcast_address"`
	Port             int      `yaml:"port"`
	Interval         Duration `yaml:"interval"`
	MDNS             bool     `yaml:"mdns"`
	MDNSTimeout      Duration `yaml:"mdns_timeout"`
}

// ConnectionConfig holds hub connection timing.
type ConnectionConfig struct {
	DialTimeout     Duration `yaml:"dial_timeout"`
	ResponseTimeout Duration `yaml:"response_timeout"`
	Fade            Duration `yaml:"fade"` // Default colour transition
}

// StaticHub is a hub reachable without discovery.
type StaticHub struct {
	Address string `yaml:"address"`        // host:port of the control channel
	Site    string `yaml:"site,omitempty"` // Hub address, aa:bb:cc:dd:ee:ff
}

// Bulb is user metadata for one device. LastHub is the control address
// the device was last seen through.
type Bulb struct {
	Nickname string    `yaml:"nickname,omitempty"`
	LastHub  string    `yaml:"last_hub,omitempty"`
	LastSeen time.Time `yaml:"last_seen,omitempty"`
}

type CaptureConfig struct {
	Path string `yaml:"path,omitempty"` // Empty disables capture
}

type BridgeConfig struct {
	Listen string `yaml:"listen"`
}

// Duration is a time.Duration written as a Go duration string ("1.5s").
type Duration time.Duration

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default creates a Config with default values.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Discovery: DiscoveryConfig{
			BroadcastAddress: "255.255.255.255",
			Port:             56700,
			Interval:         Duration(time.Second),
			MDNSTimeout:      Duration(5 * time.Second),
		},
		Connection: ConnectionConfig{
			DialTimeout:     Duration(5 * time.Second),
			ResponseTimeout: Duration(3 * time.Second),
			Fade:            Duration(time.Second),
		},
		Bulbs:  make(map[string]*Bulb),
		Bridge: BridgeConfig{Listen: ":8080"},
	}
}

// bulbKey normalises an address string so that case does not matter.
func bulbKey(addr field.Address) string {
	return addr.String()
}

// GetBulb retrieves bulb metadata by address, or nil.
func (c *Config) GetBulb(addr field.Address) *Bulb {
	return c.Bulbs[bulbKey(addr)]
}

// EnsureBulb returns the entry for addr, creating it if needed.
func (c *Config) EnsureBulb(addr field.Address) *Bulb {
	if c.Bulbs == nil {
		c.Bulbs = make(map[string]*Bulb)
	}
	key := bulbKey(addr)
	if b, ok := c.Bulbs[key]; ok {
		return b
	}
	b := &Bulb{}
	c.Bulbs[key] = b
	return b
}

// UpdateBulbLastSeen records where and when a bulb was seen.
func (c *Config) UpdateBulbLastSeen(addr field.Address, hub string, at time.Time) {
	b := c.EnsureBulb(addr)
	b.LastHub = hub
	b.LastSeen = at
}

// SetBulbNickname sets a user-friendly name for a bulb.
func (c *Config) SetBulbNickname(addr field.Address, nickname string) {
	c.EnsureBulb(addr).Nickname = nickname
}

// Nickname returns the bulb nickname, or "" if none is set.
func (c *Config) Nickname(addr field.Address) string {
	if b := c.GetBulb(addr); b != nil {
		return b.Nickname
	}
	return ""
}

// ResolveBulb accepts a device address or a nickname (case-insensitive).
func (c *Config) ResolveBulb(s string) (field.Address, error) {
	if addr, err := field.ParseAddress(s); err == nil {
		return addr, nil
	}
	for key, b := range c.Bulbs {
		if b != nil && b.Nickname != "" && strings.EqualFold(b.Nickname, s) {
			return field.ParseAddress(key)
		}
	}
	return field.Address{}, fmt.Errorf("unknown bulb %q", s)
}

// AddHub adds a static hub unless its address is already listed.
func (c *Config) AddHub(address, site string) bool {
	for _, h := range c.Hubs {
		if h.Address == address {
			return false
		}
	}
	c.Hubs = append(c.Hubs, StaticHub{Address: address, Site: site})
	return true
}
