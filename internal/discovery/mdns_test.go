package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func lifxEntry(instance string, text []string, v4, v6 []net.IP) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, ServiceType, ServiceDomain)
	e.HostName = "lifx.local."
	e.Port = 80
	e.Text = text
	e.AddrIPv4 = v4
	e.AddrIPv6 = v6
	return e
}

func TestScanner_parseServiceEntry(t *testing.T) {
	scanner := NewScanner()

	tests := []struct {
		name      string
		entry     *zeroconf.ServiceEntry
		wantNil   bool
		wantIP    string
		wantModel string
	}{
		{
			name: "LIFX bulb with IPv4",
			entry: lifxEntry("LIFX Bulb 1A2B3C", []string{"md=LIFX A19", "ci=5"},
				[]net.IP{net.ParseIP("192.168.1.40")}, nil),
			wantIP:    "192.168.1.40",
			wantModel: "LIFX A19",
		},
		{
			name: "prefers IPv4 over IPv6",
			entry: lifxEntry("LIFX Mini", []string{"md=LIFX Mini"},
				[]net.IP{net.ParseIP("10.0.0.7")}, []net.IP{net.ParseIP("fe80::1")}),
			wantIP:    "10.0.0.7",
			wantModel: "LIFX Mini",
		},
		{
			name: "IPv6 only",
			entry: lifxEntry("LIFX Strip", []string{"md=LIFX Z"},
				nil, []net.IP{net.ParseIP("fe80::2")}),
			wantIP:    "fe80::2",
			wantModel: "LIFX Z",
		},
		{
			name: "other HomeKit accessory",
			entry: lifxEntry("Thermostat", []string{"md=Ecobee3"},
				[]net.IP{net.ParseIP("192.168.1.9")}, nil),
			wantNil: true,
		},
		{
			name:    "no model record",
			entry:   lifxEntry("Unknown", nil, []net.IP{net.ParseIP("192.168.1.9")}, nil),
			wantNil: true,
		},
		{
			name:    "no IP address",
			entry:   lifxEntry("LIFX Bulb", []string{"md=LIFX A19"}, nil, nil),
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := scanner.parseServiceEntry(tt.entry)

			if tt.wantNil {
				if c != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", c)
				}
				return
			}
			if c == nil {
				t.Fatal("parseServiceEntry() = nil, want candidate")
			}
			if c.IP.String() != tt.wantIP {
				t.Errorf("candidate.IP = %v, want %v", c.IP, tt.wantIP)
			}
			if c.Model != tt.wantModel {
				t.Errorf("candidate.Model = %q, want %q", c.Model, tt.wantModel)
			}
			if c.Instance != tt.entry.Instance {
				t.Errorf("candidate.Instance = %q, want %q", c.Instance, tt.entry.Instance)
			}
			if time.Since(c.DiscoveredAt) > time.Second {
				t.Errorf("candidate.DiscoveredAt is not recent: %v", c.DiscoveredAt)
			}
		})
	}
}

func TestParseTXT(t *testing.T) {
	got := parseTXT([]string{"md=LIFX A19", "c#=2", "flag", "sf=1=2"})
	want := map[string]string{
		"md":   "LIFX A19",
		"c#":   "2",
		"flag": "",
		"sf":   "1=2",
	}
	if len(got) != len(want) {
		t.Errorf("parseTXT() has %d entries, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("parseTXT()[%q] = %q, want %q", k, got[k], v)
		}
	}
}

func TestNewScanner(t *testing.T) {
	scanner := NewScanner()
	if scanner.Timeout != DefaultScanTimeout {
		t.Errorf("scanner.Timeout = %v, want %v", scanner.Timeout, DefaultScanTimeout)
	}
}

func TestCandidateString(t *testing.T) {
	c := lifxEntry("LIFX Bulb 1A2B3C", []string{"md=LIFX A19"}, []net.IP{net.ParseIP("192.168.1.40")}, nil)
	got := NewScanner().parseServiceEntry(c).String()
	want := "LIFX Bulb 1A2B3C (LIFX A19) at 192.168.1.40"
	if got != want {
		t.Errorf("Candidate.String() = %q, want %q", got, want)
	}
}
