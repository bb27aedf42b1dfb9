package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muurk/lifxlan/internal/capture"
	"github.com/muurk/lifxlan/internal/events"
	"github.com/muurk/lifxlan/internal/field"
	"github.com/muurk/lifxlan/internal/logging"
	"github.com/muurk/lifxlan/internal/protocol"
	"github.com/muurk/lifxlan/internal/response"
)

// Connection errors.
var (
	ErrNotConnected     = errors.New("hub not connected")
	ErrAlreadyConnected = errors.New("hub already connected")
	ErrConnectionClosed = errors.New("hub connection closed")
)

// State represents the connection state
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Dialer opens the control stream. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Conn is the control channel to one hub. Sends are safe from any
// goroutine; one goroutine per connection reads and dispatches frames.
type Conn struct {
	id   uuid.UUID
	addr string
	opts *options
	log  *zap.Logger

	state  atomic.Int32
	closed atomic.Bool

	mu     sync.Mutex
	site   field.Address
	conn   net.Conn
	writer *protocol.FrameWriter
	err    error

	tracker *response.Tracker
	devices *Devices
	done    chan struct{}
}

// New creates a connection to the hub control port at addr (host:port).
// site is the hub's address, stamped on every packet sent with Send.
func New(addr string, site field.Address, opts ...Option) *Conn {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	id := uuid.New()
	return &Conn{
		id:      id,
		addr:    addr,
		site:    site,
		opts:    o,
		log:     o.logger.With(zap.String("hub", addr), zap.String("hub_id", id.String())),
		tracker: response.NewTracker(),
		devices: NewDevices(),
		done:    make(chan struct{}),
	}
}

// ID identifies this connection in logs and captures.
func (c *Conn) ID() uuid.UUID { return c.id }

// Addr returns the control address (host:port).
func (c *Conn) Addr() string { return c.addr }

// Site returns the hub address stamped on outgoing packets.
func (c *Conn) Site() field.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.site
}

// State returns the current connection state
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Done is closed when the receive loop has exited.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns the error that ended the connection, nil for a local Close
// or while connected.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Outstanding returns the number of handles still tracked.
func (c *Conn) Outstanding() int { return c.tracker.Len() }

// Connect dials the hub, starts the receive loop and broadcasts a device
// status request so attached devices report in.
func (c *Conn) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}

	if c.opts.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.dialTimeout)
		defer cancel()
	}
	conn, err := c.opts.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return fmt.Errorf("dial %s: %w", c.addr, err)
	}

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		_ = conn.Close()
		c.state.Store(int32(StateDisconnected))
		close(c.done)
		return ErrConnectionClosed
	}
	c.conn = conn
	c.writer = protocol.NewFrameWriter(conn)
	c.mu.Unlock()

	// Connected must be visible before the receive loop can store
	// Disconnected, so HubConnected always precedes HubDisconnected.
	c.state.Store(int32(StateConnected))
	logging.LogConnection(c.log, c.addr, "connected")
	c.publish(events.HubConnected{Hub: c.addr})

	go c.readLoop(conn)

	return c.RequestStatus()
}

// RequestStatus broadcasts GetLightState to every device behind the hub.
// Replies arrive as device events; nothing waits for them.
func (c *Conn) RequestStatus() error {
	if _, err := c.Send(protocol.New(&protocol.GetLightState{}, field.Address{})); err != nil {
		return fmt.Errorf("request device status: %w", err)
	}
	return nil
}

// Close ends the connection and waits for the receive loop to exit.
// Outstanding handles fail with ErrConnectionClosed. The connection cannot
// be reopened.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.state.Store(int32(StateDisconnected))
		return nil
	}
	err := conn.Close()
	<-c.done
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close %s: %w", c.addr, err)
	}
	return nil
}

// Send stamps p with the hub site and sends it with SendRaw.
func (c *Conn) Send(p *protocol.Packet, opts ...response.Option) (*response.Handle, error) {
	p.Header.Site = c.Site()
	return c.SendRaw(p, opts...)
}

// SendRaw writes p unchanged and returns a handle tracking its responses.
// The packet is marshaled before anything is tracked, so a malformed
// command fails here without touching the wire.
func (c *Conn) SendRaw(p *protocol.Packet, opts ...response.Option) (*response.Handle, error) {
	if c.State() != StateConnected {
		return nil, ErrNotConnected
	}
	data, err := p.Marshal()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	writer := c.writer
	c.mu.Unlock()

	h := response.NewHandle(p, opts...)
	c.tracker.Add(h)

	if err := writer.WriteFrame(data); err != nil {
		c.tracker.Remove(h)
		c.abort(fmt.Errorf("write: %w", err))
		return nil, fmt.Errorf("send %s: %w", protocol.TypeName(p.Type()), err)
	}

	logging.LogFrame(c.log, "out", c.addr, data)
	c.record(capture.DirectionOut, p.Type(), data)
	c.publish(events.PacketSent{Hub: c.addr, Packet: p, Handle: h.ID()})
	return h, nil
}

// Request sends p and waits for its responses.
func (c *Conn) Request(ctx context.Context, p *protocol.Packet, opts ...response.Option) (*response.Handle, error) {
	h, err := c.Send(p, opts...)
	if err != nil {
		return nil, err
	}
	return h, h.Await(ctx)
}

// abort records err as the cause and closes the stream, which ends the
// receive loop.
func (c *Conn) abort(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Conn) readLoop(conn net.Conn) {
	defer close(c.done)

	var loopErr error
	for {
		frame, err := protocol.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !c.closed.Load() {
				loopErr = err
			}
			break
		}
		c.dispatch(frame.Raw)
	}
	c.shutdown(loopErr)
}

func (c *Conn) shutdown(loopErr error) {
	c.state.Store(int32(StateDisconnected))
	c.closed.Store(true)

	c.mu.Lock()
	if c.err == nil && loopErr != nil {
		c.err = loopErr
	}
	cause := c.err
	conn := c.conn
	c.mu.Unlock()
	_ = conn.Close()

	abortErr := ErrConnectionClosed
	if cause != nil {
		abortErr = fmt.Errorf("%w: %v", ErrConnectionClosed, cause)
		c.log.Error("Connection lost", zap.Error(cause))
	}
	c.tracker.Abort(abortErr)

	logging.LogConnection(c.log, c.addr, "disconnected")
	c.publish(events.HubDisconnected{Hub: c.addr, Err: cause})
}

// dispatch handles one complete frame from the receive loop.
func (c *Conn) dispatch(raw []byte) {
	logging.LogFrame(c.log, "in", c.addr, raw)

	code, err := protocol.PeekType(raw)
	if err != nil {
		c.log.Warn("Dropping short frame", zap.Int("length", len(raw)))
		return
	}
	c.record(capture.DirectionIn, code, raw)

	if !c.opts.registry.Known(code) {
		c.log.Debug("Unknown packet type", zap.String("type", protocol.TypeName(code)))
		return
	}
	pkt, err := c.opts.registry.Parse(raw)
	if err != nil {
		c.log.Warn("Failed to parse packet", zap.String("type", protocol.TypeName(code)), zap.Error(err))
		logging.LogRawBytes("Unparsed frame", raw)
		return
	}

	c.publish(events.PacketReceived{Hub: c.addr, Packet: pkt})

	if h, err := c.tracker.Offer(pkt); err != nil {
		c.log.Debug("Unmatched packet", zap.Error(err))
	} else if h.IsFulfilled() {
		c.log.Debug("Response fulfilled", zap.String("handle", h.ID().String()))
		c.publish(events.ResponseFulfilled{
			Hub:       c.addr,
			Handle:    h.ID(),
			Request:   h.Request(),
			Responses: len(h.Responses()),
		})
	}

	c.observeDevice(pkt)
}

func (c *Conn) observeDevice(pkt *protocol.Packet) {
	state, change := c.devices.Apply(pkt, time.Now())
	switch change {
	case ChangeCreated:
		c.log.Info("Device discovered", zap.Stringer("device", state.Address), zap.String("label", state.Label))
		c.publish(events.DeviceDiscovered{Hub: c.addr, Device: state})
	case ChangeUpdated:
		c.publish(events.DeviceUpdated{Hub: c.addr, Device: state})
	}
}

// Devices returns a snapshot of known devices ordered by address.
func (c *Conn) Devices() []events.DeviceState {
	return c.devices.All()
}

// Device returns the record for addr.
func (c *Conn) Device(addr field.Address) (events.DeviceState, bool) {
	return c.devices.Get(addr)
}

func (c *Conn) publish(e events.Event) {
	if c.opts.notifier != nil {
		c.opts.notifier.Publish(e)
	}
}

func (c *Conn) record(dir capture.Direction, code uint16, frame []byte) {
	if c.opts.recorder == nil {
		return
	}
	c.opts.recorder.Record(capture.Record{
		Time:      time.Now(),
		HubID:     c.id.String(),
		Remote:    c.addr,
		Direction: dir,
		Type:      code,
		Frame:     frame,
	})
}

func (c *Conn) String() string {
	return fmt.Sprintf("Hub{addr=%s, site=%s, state=%s, devices=%d}", c.addr, c.Site(), c.State(), c.devices.Len())
}
