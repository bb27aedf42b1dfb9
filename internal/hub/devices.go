package hub

import (
	"bytes"
	"sort"
	"sync"
	"time"

	"github.com/muurk/lifxlan/internal/events"
	"github.com/muurk/lifxlan/internal/field"
	"github.com/muurk/lifxlan/internal/protocol"
)

// Change describes what Apply did to the registry.
type Change int

const (
	ChangeNone Change = iota
	ChangeCreated
	ChangeUpdated
)

// Devices is the per-hub registry of devices keyed by address.
type Devices struct {
	mu     sync.RWMutex
	byAddr map[field.Address]*events.DeviceState
}

// NewDevices creates an empty registry.
func NewDevices() *Devices {
	return &Devices{byAddr: make(map[field.Address]*events.DeviceState)}
}

// Apply folds a status packet into the registry. Only LightState creates
// records; StatePower, StateLabel and StateTags update known devices.
// Packets without a target address are ignored.
func (d *Devices) Apply(pkt *protocol.Packet, now time.Time) (events.DeviceState, Change) {
	addr := pkt.Header.Target
	if addr.IsZero() {
		return events.DeviceState{}, ChangeNone
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	dev, known := d.byAddr[addr]

	switch m := pkt.Payload.(type) {
	case *protocol.LightState:
		change := ChangeUpdated
		if !known {
			dev = &events.DeviceState{Address: addr}
			d.byAddr[addr] = dev
			change = ChangeCreated
		}
		dev.Color = m.Color
		dev.Dim = m.Dim
		dev.Label = m.Label
		dev.Tags = m.Tags
		setPower(dev, m.Power)
		dev.LastSeen = now
		return *dev, change

	case *protocol.StatePower:
		if !known || !m.State.Known() {
			return events.DeviceState{}, ChangeNone
		}
		setPower(dev, m.State)

	case *protocol.StateLabel:
		if !known {
			return events.DeviceState{}, ChangeNone
		}
		dev.Label = m.Label

	case *protocol.StateTags:
		if !known {
			return events.DeviceState{}, ChangeNone
		}
		dev.Tags = m.Tags

	default:
		return events.DeviceState{}, ChangeNone
	}

	dev.LastSeen = now
	return *dev, ChangeUpdated
}

// setPower keeps the last known power when the device reports a value
// outside the on/off encoding.
func setPower(dev *events.DeviceState, p protocol.PowerState) {
	if !p.Known() {
		return
	}
	dev.Power = p
	dev.On = p.On()
}

// Get returns a copy of the record for addr.
func (d *Devices) Get(addr field.Address) (events.DeviceState, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dev, ok := d.byAddr[addr]
	if !ok {
		return events.DeviceState{}, false
	}
	return *dev, true
}

// All returns copies of every record ordered by address.
func (d *Devices) All() []events.DeviceState {
	d.mu.RLock()
	out := make([]events.DeviceState, 0, len(d.byAddr))
	for _, dev := range d.byAddr {
		out = append(out, *dev)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out
}

// Len returns the number of known devices.
func (d *Devices) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byAddr)
}
