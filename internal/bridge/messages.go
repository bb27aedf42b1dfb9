package bridge

import (
	"github.com/muurk/lifxlan/internal/events"
	"github.com/muurk/lifxlan/internal/protocol"
)

// EventMessage is the JSON form of an event sent to every client.
type EventMessage struct {
	Event     string              `json:"event"`
	Hub       string              `json:"hub,omitempty"`
	Site      string              `json:"site,omitempty"`
	From      string              `json:"from,omitempty"`
	Device    *events.DeviceState `json:"device,omitempty"`
	Packet    *PacketInfo         `json:"packet,omitempty"`
	Handle    string              `json:"handle,omitempty"`
	Responses int                 `json:"responses,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// PacketInfo summarises a packet without its payload bytes.
type PacketInfo struct {
	Type   string `json:"type"`
	Code   uint16 `json:"code"`
	Target string `json:"target"`
	Size   uint16 `json:"size"`
}

func packetInfo(p *protocol.Packet) *PacketInfo {
	if p == nil {
		return nil
	}
	return &PacketInfo{
		Type:   protocol.TypeName(p.Type()),
		Code:   p.Type(),
		Target: p.Header.Target.String(),
		Size:   p.Header.Size,
	}
}

// toMessage converts an event for the wire.
func toMessage(e events.Event) EventMessage {
	msg := EventMessage{Event: e.Kind().String()}

	switch ev := e.(type) {
	case events.HubDiscovered:
		msg.Hub = ev.Hub
		msg.Site = ev.Site.String()
	case events.HubConnected:
		msg.Hub = ev.Hub
	case events.HubDisconnected:
		msg.Hub = ev.Hub
		if ev.Err != nil {
			msg.Error = ev.Err.Error()
		}
	case events.PacketSent:
		msg.Hub = ev.Hub
		msg.Packet = packetInfo(ev.Packet)
		msg.Handle = ev.Handle.String()
	case events.PacketReceived:
		msg.Hub = ev.Hub
		msg.Packet = packetInfo(ev.Packet)
	case events.ResponseFulfilled:
		msg.Hub = ev.Hub
		msg.Handle = ev.Handle.String()
		msg.Packet = packetInfo(ev.Request)
		msg.Responses = ev.Responses
	case events.DeviceDiscovered:
		msg.Hub = ev.Hub
		d := ev.Device
		msg.Device = &d
	case events.DeviceUpdated:
		msg.Hub = ev.Hub
		d := ev.Device
		msg.Device = &d
	case events.BroadcastPacket:
		msg.From = ev.From
		msg.Packet = packetInfo(ev.Packet)
	}
	return msg
}

// Command is a request from a client.
//
// Ops: "list", "power" (State), "color" (Color, FadeMS), "dim" (Dim,
// DurationMS), "label" (Label) and "refresh". Hub may be empty, in which
// case the device is looked up on every hub.
type Command struct {
	ID         string          `json:"id,omitempty"`
	Op         string          `json:"op"`
	Hub        string          `json:"hub,omitempty"`
	Device     string          `json:"device,omitempty"`
	State      string          `json:"state,omitempty"`
	Color      *protocol.Color `json:"color,omitempty"`
	FadeMS     *int            `json:"fade_ms,omitempty"`
	Dim        uint16          `json:"dim,omitempty"`
	DurationMS int             `json:"duration_ms,omitempty"`
	Label      string          `json:"label,omitempty"`
}

// Reply answers one Command.
type Reply struct {
	ID      string               `json:"id,omitempty"`
	OK      bool                 `json:"ok"`
	Error   string               `json:"error,omitempty"`
	Device  *events.DeviceState  `json:"device,omitempty"`
	Devices []events.DeviceState `json:"devices,omitempty"`
}
