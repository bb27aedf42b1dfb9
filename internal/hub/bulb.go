package hub

import (
	"context"
	"fmt"
	"time"

	"github.com/muurk/lifxlan/internal/events"
	"github.com/muurk/lifxlan/internal/field"
	"github.com/muurk/lifxlan/internal/protocol"
	"github.com/muurk/lifxlan/internal/response"
)

// DefaultFade is the transition time used by SetColor.
const DefaultFade = time.Second

// Bulb addresses commands at one device behind a hub.
type Bulb struct {
	conn *Conn
	addr field.Address
}

// Bulb returns a command helper for addr. The device does not need to be
// known yet.
func (c *Conn) Bulb(addr field.Address) *Bulb {
	return &Bulb{conn: c, addr: addr}
}

// Address returns the device address.
func (b *Bulb) Address() field.Address { return b.addr }

// State returns the last known record for the device.
func (b *Bulb) State() (events.DeviceState, bool) {
	return b.conn.Device(b.addr)
}

func (b *Bulb) send(ctx context.Context, payload protocol.Payload, opts ...response.Option) (*response.Handle, error) {
	return b.conn.Request(ctx, protocol.New(payload, b.addr), opts...)
}

// SetPower switches the device on or off.
func (b *Bulb) SetPower(ctx context.Context, state protocol.PowerState) error {
	_, err := b.send(ctx, &protocol.SetPower{State: state})
	return err
}

func (b *Bulb) TurnOn(ctx context.Context) error  { return b.SetPower(ctx, protocol.PowerOn) }
func (b *Bulb) TurnOff(ctx context.Context) error { return b.SetPower(ctx, protocol.PowerOff) }

// SetColor changes the colour with DefaultFade.
func (b *Bulb) SetColor(ctx context.Context, color protocol.Color) error {
	return b.SetColorFade(ctx, color, DefaultFade)
}

// SetColorFade changes the colour over fade.
func (b *Bulb) SetColorFade(ctx context.Context, color protocol.Color, fade time.Duration) error {
	_, err := b.send(ctx, &protocol.SetLightColor{Color: color, Fade: millis(fade)})
	return err
}

// SetDim sets absolute brightness over duration.
func (b *Bulb) SetDim(ctx context.Context, dim uint16, duration time.Duration) error {
	_, err := b.send(ctx, &protocol.SetDimAbsolute{Dim: dim, Duration: millis(duration)})
	return err
}

func (b *Bulb) SetLabel(ctx context.Context, label string) error {
	_, err := b.send(ctx, &protocol.SetLabel{Label: label})
	return err
}

// Refresh asks the device for its state and waits for its reply.
func (b *Bulb) Refresh(ctx context.Context) (events.DeviceState, error) {
	h, err := b.send(ctx, &protocol.GetLightState{},
		response.ExpectFrom(protocol.TypeLightState, b.addr))
	if err != nil {
		return events.DeviceState{}, err
	}
	ls, ok := response.Get[*protocol.LightState](h)
	if !ok {
		return events.DeviceState{}, fmt.Errorf("refresh %s: no light state", b.addr)
	}
	// The registry may not have applied the reply yet.
	state := events.DeviceState{
		Address:  b.addr,
		Label:    ls.Label,
		Color:    ls.Color,
		Dim:      ls.Dim,
		Tags:     ls.Tags,
		LastSeen: time.Now(),
	}
	if prev, ok := b.State(); ok {
		state.Power, state.On = prev.Power, prev.On
	}
	if ls.Power.Known() {
		state.Power, state.On = ls.Power, ls.Power.On()
	}
	return state, nil
}

func (b *Bulb) String() string {
	return fmt.Sprintf("Bulb{%s via %s}", b.addr, b.conn.Addr())
}

func millis(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	return uint32(d / time.Millisecond)
}
