package bridge

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/muurk/lifxlan/internal/events"
	"github.com/muurk/lifxlan/internal/field"
	"github.com/muurk/lifxlan/internal/hub"
	"github.com/muurk/lifxlan/internal/protocol"
)

var (
	hubSite = field.Address{0xd0, 0x73, 0xd5, 0x00, 0x00, 0x01}
	lamp    = field.Address{0xd0, 0x73, 0xd5, 0x10, 0x20, 0x30}
)

type staticHubs []*hub.Conn

func (s staticHubs) All() []*hub.Conn { return s }

type pipeDialer struct{ conn net.Conn }

func (d pipeDialer) DialContext(context.Context, string, string) (net.Conn, error) {
	return d.conn, nil
}

// connectHub returns a connected hub whose peer forwards every parsed
// frame to the returned channel.
func connectHub(t *testing.T) (*hub.Conn, net.Conn, <-chan *protocol.Packet) {
	t.Helper()
	client, server := net.Pipe()
	frames := make(chan *protocol.Packet, 16)
	go func() {
		reg := protocol.DefaultRegistry()
		for {
			f, err := protocol.ReadFrame(server)
			if err != nil {
				close(frames)
				return
			}
			if p, err := reg.Parse(f.Raw); err == nil {
				frames <- p
			}
		}
	}()

	h := hub.New("hub:56700", hubSite, hub.WithDialer(pipeDialer{client}), hub.WithLogger(zap.NewNop()))
	require.NoError(t, h.Connect(context.Background()))
	t.Cleanup(func() {
		_ = h.Close()
		_ = server.Close()
	})
	<-frames // initial status request
	return h, server, frames
}

func writeTo(t *testing.T, conn net.Conn, payload protocol.Payload, target field.Address) {
	t.Helper()
	data, err := protocol.New(payload, target).Marshal()
	require.NoError(t, err)
	_, err = conn.Write(data)
	require.NoError(t, err)
}

func startBridge(t *testing.T, hubs HubSource) (*Server, *httptest.Server) {
	t.Helper()
	s := New(Config{Hubs: hubs, ResponseTimeout: time.Second, Logger: zap.NewNop()})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
		ts.Close()
	})
	return s, ts
}

func dial(t *testing.T, s *Server, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	before := s.ActiveClients()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return s.ActiveClients() == before+1 }, time.Second, 5*time.Millisecond)
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(v))
}

func TestEventsFanOut(t *testing.T) {
	s, ts := startBridge(t, staticHubs{})
	a := dial(t, s, ts)
	b := dial(t, s, ts)

	s.Publish(events.DeviceUpdated{
		Hub:    "hub:56700",
		Device: events.DeviceState{Address: lamp, Label: "Desk", On: true},
	})

	for _, conn := range []*websocket.Conn{a, b} {
		var msg EventMessage
		readJSON(t, conn, &msg)
		assert.Equal(t, "device_updated", msg.Event)
		assert.Equal(t, "hub:56700", msg.Hub)
		require.NotNil(t, msg.Device)
		assert.Equal(t, lamp, msg.Device.Address)
		assert.Equal(t, "Desk", msg.Device.Label)
	}
}

func TestEventMessageShapes(t *testing.T) {
	pkt := protocol.New(&protocol.GetPower{}, lamp)
	_, err := pkt.Marshal()
	require.NoError(t, err)

	tests := []struct {
		name  string
		event events.Event
		want  map[string]interface{}
	}{
		{
			name:  "hub discovered",
			event: events.HubDiscovered{Hub: "10.0.0.2:56700", Site: hubSite},
			want:  map[string]interface{}{"event": "hub_discovered", "hub": "10.0.0.2:56700", "site": "D0:73:D5:00:00:01"},
		},
		{
			name:  "disconnect with error",
			event: events.HubDisconnected{Hub: "h", Err: assert.AnError},
			want:  map[string]interface{}{"event": "hub_disconnected", "error": assert.AnError.Error()},
		},
		{
			name:  "packet sent",
			event: events.PacketSent{Hub: "h", Packet: pkt},
			want:  map[string]interface{}{"event": "packet_sent"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(toMessage(tt.event))
			require.NoError(t, err)
			var got map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &got))
			for k, v := range tt.want {
				assert.Equal(t, v, got[k], k)
			}
		})
	}

	info := toMessage(events.PacketSent{Packet: pkt}).Packet
	require.NotNil(t, info)
	assert.Equal(t, protocol.TypeGetPower, info.Code)
	assert.Equal(t, "D0:73:D5:10:20:30", info.Target)
	assert.Equal(t, uint16(protocol.HeaderLen), info.Size)
}

func TestSlowClientDropped(t *testing.T) {
	s := New(Config{QueueSize: 1, Logger: zap.NewNop()})
	c := &client{remote: "test", send: make(chan []byte, 1), quit: make(chan struct{})}
	s.add(c)

	s.Publish(events.HubConnected{Hub: "a"})
	assert.Equal(t, 1, s.ActiveClients())

	s.Publish(events.HubConnected{Hub: "b"})
	assert.Zero(t, s.ActiveClients())

	select {
	case <-c.quit:
	default:
		t.Fatal("dropped client not closed")
	}
	assert.False(t, c.enqueue([]byte("x")))
}

func TestPowerCommand(t *testing.T) {
	h, peer, frames := connectHub(t)
	writeTo(t, peer, &protocol.LightState{Label: "Desk"}, lamp)
	require.Eventually(t, func() bool { return len(h.Devices()) == 1 }, time.Second, 5*time.Millisecond)

	s, ts := startBridge(t, staticHubs{h})
	conn := dial(t, s, ts)

	require.NoError(t, conn.WriteJSON(Command{ID: "1", Op: "power", Device: lamp.String(), State: "on"}))
	var reply Reply
	readJSON(t, conn, &reply)
	assert.Equal(t, "1", reply.ID)
	assert.True(t, reply.OK, reply.Error)

	pkt := <-frames
	set, ok := protocol.As[*protocol.SetPower](pkt)
	require.True(t, ok)
	assert.Equal(t, protocol.PowerOn, set.State)
	assert.Equal(t, lamp, pkt.Header.Target)
	assert.Equal(t, hubSite, pkt.Header.Site)
}

func TestColorCommandFade(t *testing.T) {
	h, _, frames := connectHub(t)
	s, ts := startBridge(t, staticHubs{h})
	conn := dial(t, s, ts)

	fade := 250
	require.NoError(t, conn.WriteJSON(Command{
		Op: "color", Hub: "hub:56700", Device: lamp.String(),
		Color: &protocol.Color{Hue: 1000, Saturation: 65535, Brightness: 30000, Kelvin: 3500}, FadeMS: &fade,
	}))
	var reply Reply
	readJSON(t, conn, &reply)
	require.True(t, reply.OK, reply.Error)

	set, ok := protocol.As[*protocol.SetLightColor](<-frames)
	require.True(t, ok)
	assert.Equal(t, uint32(250), set.Fade)
	assert.Equal(t, uint16(1000), set.Color.Hue)
}

func TestCommandErrors(t *testing.T) {
	h, _, _ := connectHub(t)
	s, ts := startBridge(t, staticHubs{h})
	conn := dial(t, s, ts)

	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{"bad address", Command{Op: "power", Device: "lamp", State: "on"}, "invalid device address"},
		{"unknown device", Command{Op: "power", Device: lamp.String(), State: "on"}, "not found on any hub"},
		{"unknown hub", Command{Op: "power", Hub: "other:1", Device: lamp.String(), State: "on"}, "unknown hub"},
		{"bad state", Command{Op: "power", Hub: "hub:56700", Device: lamp.String(), State: "dim"}, "power state"},
		{"unknown op", Command{Op: "explode", Hub: "hub:56700", Device: lamp.String()}, "unknown op"},
		{"missing color", Command{Op: "color", Hub: "hub:56700", Device: lamp.String()}, "missing color"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, conn.WriteJSON(tt.cmd))
			var reply Reply
			readJSON(t, conn, &reply)
			assert.False(t, reply.OK)
			assert.Contains(t, reply.Error, tt.want)
		})
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	var reply Reply
	readJSON(t, conn, &reply)
	assert.Contains(t, reply.Error, "invalid command")
}

func TestListAndDevicesEndpoint(t *testing.T) {
	h, peer, _ := connectHub(t)
	writeTo(t, peer, &protocol.LightState{Label: "Desk", Power: protocol.PowerOn}, lamp)
	require.Eventually(t, func() bool { return len(h.Devices()) == 1 }, time.Second, 5*time.Millisecond)

	s, ts := startBridge(t, staticHubs{h})
	conn := dial(t, s, ts)

	require.NoError(t, conn.WriteJSON(Command{Op: "list"}))
	var reply Reply
	readJSON(t, conn, &reply)
	require.True(t, reply.OK)
	require.Len(t, reply.Devices, 1)
	assert.Equal(t, "Desk", reply.Devices[0].Label)

	resp, err := http.Get(ts.URL + "/devices")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var devices []events.DeviceState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&devices))
	require.Len(t, devices, 1)
	assert.True(t, devices[0].On)
}

func TestShutdownDisconnectsClients(t *testing.T) {
	s := New(Config{Logger: zap.NewNop()})
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- s.Serve(l) }()
	require.Eventually(t, func() bool { return s.Addr() != nil }, time.Second, 5*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.ActiveClients() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.NoError(t, <-served)
	assert.Zero(t, s.ActiveClients())

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestNoClientsAfterShutdown(t *testing.T) {
	s := New(Config{Logger: zap.NewNop()})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Zero(t, s.ActiveClients())

	// Publishing after shutdown reaches nobody and does not block.
	s.Publish(events.HubConnected{Hub: "h"})
}

func TestShutdownRacesNewClients(t *testing.T) {
	s := New(Config{Logger: zap.NewNop()})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	dialed := make(chan *websocket.Conn, 8)
	go func() {
		defer close(dialed)
		for i := 0; i < 8; i++ {
			if conn, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
				dialed <- conn
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	for conn := range dialed {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		conn.Close()
	}
	assert.Zero(t, s.ActiveClients())
}
