package discovery

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the mDNS service type LIFX hubs advertise through
	// HomeKit.
	ServiceType = "_hap._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for an mDNS scan
	DefaultScanTimeout = 5 * time.Second

	// modelPrefix is the HomeKit "md" TXT value prefix used by LIFX products
	modelPrefix = "LIFX"
)

// Candidate is a host that advertised itself as a LIFX product over mDNS.
// It is only a hint: the hub control port comes from a discovery probe.
type Candidate struct {
	// Instance is the advertised service name (e.g., "LIFX Bulb 1A2B3C")
	Instance string

	// Hostname is the mDNS hostname
	Hostname string

	IP    netip.Addr
	Model string

	// Metadata contains the TXT record data
	Metadata map[string]string

	DiscoveredAt time.Time
}

func (c *Candidate) String() string {
	return fmt.Sprintf("%s (%s) at %s", c.Instance, c.Model, c.IP)
}

// Scanner browses mDNS for LIFX hosts. It is useful on networks that drop
// UDP broadcast but still pass multicast DNS.
type Scanner struct {
	// Timeout is the maximum time to browse
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Scan browses until the timeout or ctx ends and returns every LIFX host
// seen, one entry per IP.
func (s *Scanner) Scan(ctx context.Context) ([]*Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)

	var (
		mu    sync.Mutex
		found []*Candidate
		seen  = make(map[netip.Addr]bool)
	)
	go func() {
		for entry := range entries {
			c := s.parseServiceEntry(entry)
			if c == nil {
				continue
			}
			mu.Lock()
			if !seen[c.IP] {
				seen[c.IP] = true
				found = append(found, c)
			}
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	out := make([]*Candidate, len(found))
	copy(out, found)
	return out, nil
}

// parseServiceEntry converts a zeroconf entry to a Candidate, or nil when
// the entry is not a LIFX product or has no usable address.
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Candidate {
	metadata := parseTXT(entry.Text)
	model := metadata["md"]
	if !strings.HasPrefix(model, modelPrefix) {
		return nil
	}

	// Prefer IPv4; the LAN protocol is IPv4 broadcast based.
	var ip netip.Addr
	for _, addr := range entry.AddrIPv4 {
		if a, ok := netip.AddrFromSlice(addr.To4()); ok {
			ip = a
			break
		}
	}
	if !ip.IsValid() && len(entry.AddrIPv6) > 0 {
		if a, ok := netip.AddrFromSlice(entry.AddrIPv6[0]); ok {
			ip = a
		}
	}
	if !ip.IsValid() {
		return nil
	}

	return &Candidate{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Model:        model,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// parseTXT splits "key=value" records. Keys without a value map to "".
func parseTXT(records []string) map[string]string {
	metadata := make(map[string]string, len(records))
	for _, txt := range records {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}
	return metadata
}
