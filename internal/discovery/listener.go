package discovery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/lifxlan/internal/capture"
	"github.com/muurk/lifxlan/internal/events"
	"github.com/muurk/lifxlan/internal/field"
	"github.com/muurk/lifxlan/internal/hub"
	"github.com/muurk/lifxlan/internal/logging"
	"github.com/muurk/lifxlan/internal/protocol"
)

var (
	ErrListenerClosed   = errors.New("discovery listener closed")
	ErrAlreadyListening = errors.New("discovery listener already started")
)

// maxDatagram is the largest frame the size field can describe.
const maxDatagram = 1<<16 - 1

// Listener owns the discovery socket. One goroutine periodically
// broadcasts GetService; another reads replies, registers hubs and
// forwards any other packets as BroadcastPacket events.
type Listener struct {
	conn net.PacketConn
	opts *options
	log  *zap.Logger
	hubs *Hubs

	started atomic.Bool
	closed  atomic.Bool

	stopOnce      sync.Once
	stopBroadcast chan struct{}
	done          chan struct{}
	wg            sync.WaitGroup
}

// Listen opens a UDP socket on the discovery port (protocol.Port unless
// WithPort says otherwise). Hubs send their answers to that port.
func Listen(opts ...Option) (*Listener, error) {
	o := newOptions(opts)
	conn, err := net.ListenPacket("udp4", ":"+strconv.Itoa(o.port))
	if err != nil {
		return nil, fmt.Errorf("listen udp %d: %w", o.port, err)
	}
	return newListener(conn, o), nil
}

// NewListener wraps an existing socket. The listener owns conn from now on.
func NewListener(conn net.PacketConn, opts ...Option) *Listener {
	return newListener(conn, newOptions(opts))
}

func newListener(conn net.PacketConn, o *options) *Listener {
	return &Listener{
		conn:          conn,
		opts:          o,
		log:           o.logger.With(zap.String("local", conn.LocalAddr().String())),
		hubs:          o.hubs,
		stopBroadcast: make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Hubs returns the hub registry.
func (l *Listener) Hubs() *Hubs { return l.hubs }

// LocalAddr returns the socket address.
func (l *Listener) LocalAddr() net.Addr { return l.conn.LocalAddr() }

// Start acquires the multicast lock and starts the broadcaster and the
// receive loop. ctx only bounds the lock acquisition.
func (l *Listener) Start(ctx context.Context) error {
	if l.closed.Load() {
		return ErrListenerClosed
	}
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyListening
	}
	if err := ctx.Err(); err != nil {
		l.started.Store(false)
		return err
	}
	if err := l.opts.lock.Acquire(); err != nil {
		l.started.Store(false)
		return fmt.Errorf("acquire multicast lock: %w", err)
	}

	l.wg.Add(2)
	go l.receiveLoop()
	go l.broadcastLoop()

	l.log.Info("Discovery started",
		zap.String("broadcast", l.opts.broadcast),
		zap.Duration("interval", l.opts.interval))
	return nil
}

// StopDiscovery stops the broadcaster. The socket stays open, so hubs can
// still be probed and replies still arrive.
func (l *Listener) StopDiscovery() {
	l.stopOnce.Do(func() { close(l.stopBroadcast) })
}

// Close stops both loops and closes the socket. Hub connections in the
// registry are left alone.
func (l *Listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.StopDiscovery()
	close(l.done)
	err := l.conn.Close()
	l.wg.Wait()
	if l.started.Load() {
		l.opts.lock.Release()
	}
	l.log.Info("Discovery stopped", zap.Int("hubs", l.hubs.Len()))
	return err
}

// Send writes p to addr unchanged.
func (l *Listener) Send(p *protocol.Packet, addr net.Addr) error {
	if l.closed.Load() {
		return ErrListenerClosed
	}
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	if _, err := l.conn.WriteTo(data, addr); err != nil {
		return fmt.Errorf("send %s to %s: %w", protocol.TypeName(p.Type()), addr, err)
	}
	logging.LogFrame(l.log, "out", addr.String(), data)
	l.record(addr.String(), p.Type(), data)
	return nil
}

// Broadcast sends p to the broadcast address.
func (l *Listener) Broadcast(p *protocol.Packet) error {
	addr, err := l.udpAddr(l.opts.broadcast)
	if err != nil {
		return err
	}
	return l.Send(p, addr)
}

// Probe unicasts a discovery request to ip.
func (l *Listener) Probe(ip netip.Addr) error {
	return l.Send(discoveryRequest(), net.UDPAddrFromAddrPort(netip.AddrPortFrom(ip, uint16(l.opts.port))))
}

// AddStatic registers a hub that is known without discovery.
func (l *Listener) AddStatic(control netip.AddrPort, site field.Address) (*hub.Conn, bool) {
	return l.register(control, uint32(control.Port()), site)
}

func (l *Listener) udpAddr(ip string) (*net.UDPAddr, error) {
	a, err := netip.ParseAddr(ip)
	if err != nil {
		return nil, fmt.Errorf("broadcast address %q: %w", ip, err)
	}
	return net.UDPAddrFromAddrPort(netip.AddrPortFrom(a, uint16(l.opts.port))), nil
}

func discoveryRequest() *protocol.Packet {
	return protocol.New(&protocol.GetService{}, field.Address{})
}

func (l *Listener) broadcastLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.opts.interval)
	defer ticker.Stop()

	for {
		if err := l.Broadcast(discoveryRequest()); err != nil {
			if l.closed.Load() {
				return
			}
			l.log.Warn("Discovery broadcast failed", zap.Error(err))
		}
		select {
		case <-l.stopBroadcast:
			l.log.Debug("Broadcaster stopped")
			return
		case <-l.done:
			return
		case <-ticker.C:
		}
	}
}

func (l *Listener) receiveLoop() {
	defer l.wg.Done()

	buf := make([]byte, maxDatagram)
	for {
		n, from, err := l.conn.ReadFrom(buf)
		if err != nil {
			if !l.closed.Load() && !errors.Is(err, net.ErrClosed) {
				l.log.Error("Discovery socket failed", zap.Error(err))
			}
			return
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		l.handle(frame, from)
	}
}

func (l *Listener) handle(frame []byte, from net.Addr) {
	remote := from.String()
	logging.LogFrame(l.log, "in", remote, frame)

	code, err := protocol.PeekType(frame)
	if err != nil {
		l.log.Debug("Dropping short datagram", zap.String("from", remote), zap.Int("length", len(frame)))
		return
	}
	l.record(remote, code, frame)

	switch code {
	case protocol.TypeGetService:
		// Our own broadcast, or another client's.
		return
	case protocol.TypeStateService:
		l.handleService(frame, from)
		return
	}

	if !l.opts.registry.Known(code) {
		l.log.Debug("Unknown packet type", zap.String("type", protocol.TypeName(code)), zap.String("from", remote))
		return
	}
	pkt, err := l.opts.registry.Parse(frame)
	if err != nil {
		l.log.Warn("Failed to parse packet", zap.String("from", remote), zap.Error(err))
		return
	}
	l.publish(events.BroadcastPacket{From: remote, Packet: pkt})
}

func (l *Listener) handleService(frame []byte, from net.Addr) {
	pkt, err := l.opts.registry.Parse(frame)
	if err != nil {
		l.log.Warn("Failed to parse discovery response", zap.String("from", from.String()), zap.Error(err))
		return
	}
	svc, ok := protocol.As[*protocol.StateService](pkt)
	if !ok {
		return
	}
	if svc.Port == 0 {
		// Hubs answer with port 0 before their control port is ready.
		l.log.Debug("Ignoring discovery response without port", zap.String("from", from.String()))
		return
	}
	if svc.Port > math.MaxUint16 {
		l.log.Debug("Ignoring discovery response with invalid port",
			zap.String("from", from.String()), zap.Uint32("port", svc.Port))
		return
	}

	source, err := addrPort(from)
	if err != nil {
		l.log.Warn("Unusable discovery source", zap.Error(err))
		return
	}
	l.register(source, svc.Port, pkt.Header.Site)
}

func (l *Listener) register(source netip.AddrPort, port uint32, site field.Address) (*hub.Conn, bool) {
	control := netip.AddrPortFrom(source.Addr(), uint16(port)).String()
	conn, created := l.hubs.Register(source, port, func() *hub.Conn {
		return hub.New(control, site, l.hubOptions()...)
	})
	if created {
		l.log.Info("Hub discovered", zap.String("hub", control), zap.Stringer("site", site))
		l.publish(events.HubDiscovered{Hub: control, Site: site})
	}
	return conn, created
}

func (l *Listener) hubOptions() []hub.Option {
	opts := []hub.Option{hub.WithRegistry(l.opts.registry)}
	if l.opts.notifier != nil {
		opts = append(opts, hub.WithNotifier(l.opts.notifier))
	}
	if l.opts.recorder != nil {
		opts = append(opts, hub.WithRecorder(l.opts.recorder))
	}
	return append(opts, l.opts.hubOpts...)
}

func addrPort(a net.Addr) (netip.AddrPort, error) {
	if u, ok := a.(*net.UDPAddr); ok {
		ap := u.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
	}
	ap, err := netip.ParseAddrPort(a.String())
	if err != nil {
		return netip.AddrPort{}, err
	}
	return ap, nil
}

func (l *Listener) publish(e events.Event) {
	if l.opts.notifier != nil {
		l.opts.notifier.Publish(e)
	}
}

func (l *Listener) record(remote string, code uint16, frame []byte) {
	if l.opts.recorder == nil {
		return
	}
	l.opts.recorder.Record(capture.Record{
		Time:      time.Now(),
		Remote:    remote,
		Direction: capture.DirectionBroadcast,
		Type:      code,
		Frame:     frame,
	})
}
