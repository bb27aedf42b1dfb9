package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/lifxlan/internal/capture"
	"github.com/muurk/lifxlan/internal/config"
	"github.com/muurk/lifxlan/internal/discovery"
	"github.com/muurk/lifxlan/internal/events"
	"github.com/muurk/lifxlan/internal/field"
	"github.com/muurk/lifxlan/internal/hub"
	"github.com/muurk/lifxlan/internal/logging"
)

// session wires discovery, hub connections, capture and the event bus for
// one command invocation.
type session struct {
	cfg  *config.Config
	log  *zap.Logger
	bus  *events.Bus
	hubs *discovery.Hubs

	listener *discovery.Listener
	recorder *capture.FileRecorder

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// changed is signalled whenever a device is reported.
	changed chan struct{}

	mu   sync.Mutex
	seen map[field.Address]string // device -> hub it was last reported by
}

func newSession(c *config.Config) *session {
	s := &session{
		cfg:     c,
		log:     logging.Named("cli"),
		bus:     events.NewBus(),
		hubs:    discovery.NewHubs(),
		changed: make(chan struct{}, 1),
		seen:    make(map[field.Address]string),
	}
	s.bus.On(events.KindHubDiscovered, s.onHubDiscovered)
	s.bus.On(events.KindDeviceDiscovered, s.onDevice)
	s.bus.On(events.KindDeviceUpdated, s.onDevice)
	return s
}

// start opens the discovery socket, registers static hubs and, when
// enabled, probes hosts found over mDNS. Listeners registered on s.bus
// before start see every event.
func (s *session) start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	opts := []discovery.Option{
		discovery.WithBroadcastAddress(s.cfg.Discovery.BroadcastAddress),
		discovery.WithPort(s.cfg.Discovery.Port),
		discovery.WithInterval(s.cfg.Discovery.Interval.Std()),
		discovery.WithHubs(s.hubs),
		discovery.WithNotifier(s.bus),
		discovery.WithHubOptions(hub.WithDialTimeout(s.cfg.Connection.DialTimeout.Std())),
	}
	if path := s.cfg.Capture.Path; path != "" {
		rec, err := capture.NewFileRecorder(path)
		if err != nil {
			return fmt.Errorf("open capture: %w", err)
		}
		s.recorder = rec
		opts = append(opts, discovery.WithRecorder(rec))
	}

	l, err := discovery.Listen(opts...)
	if err != nil {
		s.closeRecorder()
		return err
	}
	s.listener = l
	if err := l.Start(s.ctx); err != nil {
		_ = l.Close()
		s.closeRecorder()
		return err
	}

	for _, h := range s.cfg.Hubs {
		if err := s.addStatic(h); err != nil {
			s.log.Warn("Skipping static hub", zap.String("hub", h.Address), zap.Error(err))
		}
	}

	if s.cfg.Discovery.MDNS {
		s.wg.Add(1)
		go s.probeMDNS()
	}
	return nil
}

func (s *session) addStatic(h config.StaticHub) error {
	addr, err := net.ResolveTCPAddr("tcp4", h.Address)
	if err != nil {
		return err
	}
	var site field.Address
	if h.Site != "" {
		if site, err = field.ParseAddress(h.Site); err != nil {
			return err
		}
	}
	s.listener.AddStatic(addr.AddrPort(), site)
	return nil
}

func (s *session) probeMDNS() {
	defer s.wg.Done()

	scanner := discovery.NewScanner()
	scanner.Timeout = s.cfg.Discovery.MDNSTimeout.Std()
	candidates, err := scanner.Scan(s.ctx)
	if err != nil {
		s.log.Warn("mDNS scan failed", zap.Error(err))
		return
	}
	for _, c := range candidates {
		s.log.Debug("Probing mDNS candidate", zap.Stringer("candidate", c))
		if err := s.listener.Probe(c.IP); err != nil {
			s.log.Warn("Probe failed", zap.Stringer("ip", c.IP), zap.Error(err))
		}
	}
}

// onHubDiscovered runs on the discovery receive loop, so the dial happens
// on its own goroutine.
func (s *session) onHubDiscovered(e events.Event) {
	ev := e.(events.HubDiscovered)
	var conn *hub.Conn
	for _, c := range s.hubs.All() {
		if c.Addr() == ev.Hub {
			conn = c
			break
		}
	}
	if conn == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := conn.Connect(s.ctx); err != nil && !errors.Is(err, hub.ErrAlreadyConnected) {
			s.log.Warn("Hub connection failed", zap.String("hub", ev.Hub), zap.Error(err))
		}
	}()
}

func (s *session) onDevice(e events.Event) {
	var hubAddr string
	var d events.DeviceState
	switch ev := e.(type) {
	case events.DeviceDiscovered:
		hubAddr, d = ev.Hub, ev.Device
	case events.DeviceUpdated:
		hubAddr, d = ev.Hub, ev.Device
	default:
		return
	}

	s.mu.Lock()
	s.seen[d.Address] = hubAddr
	s.mu.Unlock()

	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// devices returns every device reported so far, grouped by hub.
func (s *session) devices() map[string][]events.DeviceState {
	out := make(map[string][]events.DeviceState)
	for _, c := range s.hubs.All() {
		if devs := c.Devices(); len(devs) > 0 {
			out[c.Addr()] = devs
		}
	}
	return out
}

func (s *session) deviceCount() int {
	n := 0
	for _, c := range s.hubs.All() {
		n += len(c.Devices())
	}
	return n
}

// settle waits until no new device has been reported for quiet, or until
// ctx ends.
func (s *session) settle(ctx context.Context, quiet time.Duration) {
	timer := time.NewTimer(quiet)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case <-s.changed:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(quiet)
		}
	}
}

// bulb waits until the device named by ref has been reported by a hub and
// returns a helper for it.
func (s *session) bulb(ctx context.Context, ref string) (*hub.Bulb, error) {
	addr, err := s.cfg.ResolveBulb(ref)
	if err != nil {
		return nil, err
	}
	for {
		s.mu.Lock()
		hubAddr, ok := s.seen[addr]
		s.mu.Unlock()
		if ok {
			for _, c := range s.hubs.All() {
				if c.Addr() == hubAddr && c.State() == hub.StateConnected {
					return c.Bulb(addr), nil
				}
			}
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("bulb %s not found: %w", addr, ctx.Err())
		case <-s.changed:
		}
	}
}

// rememberDevices records where each reported device was seen.
func (s *session) rememberDevices() {
	now := time.Now()
	for hubAddr, devs := range s.devices() {
		for _, d := range devs {
			s.cfg.UpdateBulbLastSeen(d.Address, hubAddr, now)
		}
	}
}

func (s *session) closeRecorder() {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Close(); err != nil {
		s.log.Warn("Failed to close capture", zap.Error(err))
	} else {
		s.log.Info("Capture closed", zap.String("path", s.cfg.Capture.Path), zap.Int("records", s.recorder.Count()))
	}
}

// close stops discovery, closes every hub connection and flushes the capture.
func (s *session) close() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	for _, c := range s.hubs.Purge() {
		if err := c.Close(); err != nil {
			s.log.Debug("Hub close failed", zap.String("hub", c.Addr()), zap.Error(err))
		}
	}
	s.closeRecorder()
}
