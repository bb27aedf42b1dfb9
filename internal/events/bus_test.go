package events

import (
	"testing"
)

func TestBusDeliversInRegistrationOrder(t *testing.T) {
	bus := NewBus()
	var order []string

	bus.On(KindHubConnected, func(Event) { order = append(order, "connected-1") })
	bus.OnAll(func(e Event) { order = append(order, "all:"+e.Kind().String()) })
	bus.On(KindHubDisconnected, func(Event) { order = append(order, "disconnected") })
	bus.On(KindHubConnected, func(Event) { order = append(order, "connected-2") })

	bus.Publish(HubConnected{Hub: "10.0.0.2:56700"})
	bus.Publish(HubDisconnected{Hub: "10.0.0.2:56700"})

	want := []string{
		"connected-1", "all:hub_connected", "connected-2",
		"all:hub_disconnected", "disconnected",
	}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestBusSynchronous(t *testing.T) {
	bus := NewBus()
	delivered := false
	bus.On(KindDeviceUpdated, func(Event) { delivered = true })

	bus.Publish(DeviceUpdated{})
	if !delivered {
		t.Error("Publish returned before the listener ran")
	}
}

func TestBusListenerRegistersListener(t *testing.T) {
	bus := NewBus()
	calls := 0
	bus.On(KindPacketSent, func(Event) {
		calls++
		bus.On(KindPacketSent, func(Event) { calls += 10 })
	})

	bus.Publish(PacketSent{})
	if calls != 1 {
		t.Fatalf("calls after first publish = %d, want 1", calls)
	}
	bus.Publish(PacketSent{})
	if calls != 12 {
		t.Errorf("calls after second publish = %d, want 12", calls)
	}
}

func TestNilBus(t *testing.T) {
	var bus *Bus
	bus.Publish(HubConnected{})

	var p Publisher = bus
	p.Publish(HubConnected{})
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindDeviceUpdated, "device_updated"},
		{KindBroadcastPacket, "broadcast_packet"},
		{Kind(99), "kind(99)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(tt.kind), got, tt.want)
		}
	}
}
