package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/muurk/lifxlan/internal/field"
	"github.com/muurk/lifxlan/internal/protocol"
)

func TestDevicesApply(t *testing.T) {
	now := time.Unix(1700000000, 0)
	d := NewDevices()

	_, change := d.Apply(protocol.New(&protocol.LightState{Label: "x"}, field.Address{}), now)
	assert.Equal(t, ChangeNone, change, "broadcast status has no device")

	_, change = d.Apply(protocol.New(&protocol.StateTags{Tags: 3}, bulbAddr), now)
	assert.Equal(t, ChangeNone, change, "tags from unknown device")

	state, change := d.Apply(protocol.New(&protocol.LightState{Label: "Lamp", Power: 0x00FF}, bulbAddr), now)
	assert.Equal(t, ChangeCreated, change)
	assert.False(t, state.On)
	assert.Equal(t, protocol.PowerOff, state.Power)
	assert.Equal(t, now, state.LastSeen)

	later := now.Add(time.Minute)
	state, change = d.Apply(protocol.New(&protocol.StateTags{Tags: 3}, bulbAddr), later)
	assert.Equal(t, ChangeUpdated, change)
	assert.Equal(t, uint64(3), state.Tags)
	assert.Equal(t, later, state.LastSeen)

	_, change = d.Apply(protocol.New(&protocol.StateWifiInfo{}, bulbAddr), later)
	assert.Equal(t, ChangeNone, change)
}

func TestDevicesAllSortedAndCopied(t *testing.T) {
	d := NewDevices()
	upper, _ := field.ParseAddress("D0:73:D5:10:20:31")
	lower, _ := field.ParseAddress("d0:73:d5:10:20:31")

	d.Apply(protocol.New(&protocol.LightState{Label: "b"}, upper), time.Now())
	d.Apply(protocol.New(&protocol.LightState{Label: "b2"}, lower), time.Now())
	d.Apply(protocol.New(&protocol.LightState{Label: "a"}, bulbAddr), time.Now())

	all := d.All()
	assert.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Label)
	assert.Equal(t, "b2", all[1].Label)

	all[0].Label = "mutated"
	got, ok := d.Get(bulbAddr)
	assert.True(t, ok)
	assert.Equal(t, "a", got.Label)
}
