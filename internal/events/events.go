// Package events carries notifications from hub connections and discovery
// to application code.
//
// Delivery is synchronous: Publish calls every matching listener in
// registration order on the publishing goroutine before returning. Events
// published from a receive loop therefore stall that loop until listeners
// return, so listeners must not block.
package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/muurk/lifxlan/internal/field"
	"github.com/muurk/lifxlan/internal/protocol"
)

// Kind identifies an event type.
type Kind int

const (
	KindHubDiscovered Kind = iota + 1
	KindHubConnected
	KindHubDisconnected
	KindPacketSent
	KindPacketReceived
	KindResponseFulfilled
	KindDeviceDiscovered
	KindDeviceUpdated
	KindBroadcastPacket
)

var kindNames = map[Kind]string{
	KindHubDiscovered:     "hub_discovered",
	KindHubConnected:      "hub_connected",
	KindHubDisconnected:   "hub_disconnected",
	KindPacketSent:        "packet_sent",
	KindPacketReceived:    "packet_received",
	KindResponseFulfilled: "response_fulfilled",
	KindDeviceDiscovered:  "device_discovered",
	KindDeviceUpdated:     "device_updated",
	KindBroadcastPacket:   "broadcast_packet",
}

// String returns the snake_case event name used on the bridge.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event is implemented by every event struct.
type Event interface {
	Kind() Kind
}

// DeviceState is a point-in-time copy of a device record.
type DeviceState struct {
	Address  field.Address       `json:"address"`
	Label    string              `json:"label"`
	Power    protocol.PowerState `json:"-"`
	On       bool                `json:"on"`
	Color    protocol.Color      `json:"color"`
	Dim      uint16              `json:"dim"`
	Tags     uint64              `json:"tags"`
	LastSeen time.Time           `json:"last_seen"`
}

// HubDiscovered is published when discovery registers a new hub.
type HubDiscovered struct {
	Hub  string // host:port of the control channel
	Site field.Address
}

// HubConnected is published when a hub connection is established.
type HubConnected struct {
	Hub string
}

// HubDisconnected is published when a hub connection ends. Err is nil for
// a local Close.
type HubDisconnected struct {
	Hub string
	Err error
}

// PacketSent is published after a packet is written to a hub.
type PacketSent struct {
	Hub    string
	Packet *protocol.Packet
	Handle uuid.UUID
}

// PacketReceived is published for every parsed packet read from a hub.
type PacketReceived struct {
	Hub    string
	Packet *protocol.Packet
}

// ResponseFulfilled is published when a handle's last expectation matches.
type ResponseFulfilled struct {
	Hub       string
	Handle    uuid.UUID
	Request   *protocol.Packet
	Responses int
}

// DeviceDiscovered is published the first time a hub reports a device.
type DeviceDiscovered struct {
	Hub    string
	Device DeviceState
}

// DeviceUpdated is published when a status packet changes a device record.
type DeviceUpdated struct {
	Hub    string
	Device DeviceState
}

// BroadcastPacket is published for non-discovery packets received on the
// discovery socket.
type BroadcastPacket struct {
	From   string
	Packet *protocol.Packet
}

func (HubDiscovered) Kind() Kind     { return KindHubDiscovered }
func (HubConnected) Kind() Kind      { return KindHubConnected }
func (HubDisconnected) Kind() Kind   { return KindHubDisconnected }
func (PacketSent) Kind() Kind        { return KindPacketSent }
func (PacketReceived) Kind() Kind    { return KindPacketReceived }
func (ResponseFulfilled) Kind() Kind { return KindResponseFulfilled }
func (DeviceDiscovered) Kind() Kind  { return KindDeviceDiscovered }
func (DeviceUpdated) Kind() Kind     { return KindDeviceUpdated }
func (BroadcastPacket) Kind() Kind   { return KindBroadcastPacket }
