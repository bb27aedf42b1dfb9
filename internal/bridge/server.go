package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/lifxlan/internal/events"
	"github.com/muurk/lifxlan/internal/field"
	"github.com/muurk/lifxlan/internal/hub"
	"github.com/muurk/lifxlan/internal/logging"
	"github.com/muurk/lifxlan/internal/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// DefaultQueueSize is the number of messages buffered per client
	// before it is dropped.
	DefaultQueueSize = 64
)

// HubSource lists the hubs commands can be routed to. *discovery.Hubs
// satisfies it.
type HubSource interface {
	All() []*hub.Conn
}

// Config holds the bridge configuration
type Config struct {
	Listen          string
	Hubs            HubSource
	ResponseTimeout time.Duration
	Fade            time.Duration
	QueueSize       int
	Logger          *zap.Logger
}

// Server streams events to WebSocket clients and runs their commands.
// It implements events.Publisher; register it on the bus with OnAll.
type Server struct {
	config   Config
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	clients  map[*client]struct{}
	listener net.Listener
	httpSrv  *http.Server
	closing  bool // set by Shutdown; no client is accepted afterwards
	wg       sync.WaitGroup
}

// New creates a new Server instance
func New(config Config) *Server {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.ResponseTimeout <= 0 {
		config.ResponseTimeout = 3 * time.Second
	}
	if config.Fade < 0 {
		config.Fade = hub.DefaultFade
	}
	log := config.Logger
	if log == nil {
		log = logging.Named("bridge")
	}
	return &Server{
		config:  config,
		log:     log,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler serves /ws (WebSocket) and /devices (JSON snapshot).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/devices", s.serveDevices)
	return mux
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}
	return s.Serve(l)
}

// Serve serves on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: writeWait}

	s.mu.Lock()
	s.listener = l
	s.httpSrv = srv
	s.mu.Unlock()

	s.log.Info("Bridge listening", zap.String("addr", l.Addr().String()))
	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the listening address once Serve has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops the HTTP server and disconnects every client.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	srv := s.httpSrv
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	for _, c := range clients {
		s.drop(c, "shutdown")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("Shutdown timeout, forcing close")
	}
	return err
}

// ActiveClients returns the number of connected clients.
func (s *Server) ActiveClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Publish sends e to every client without blocking. A client whose queue
// is full is disconnected.
func (s *Server) Publish(e events.Event) {
	if e == nil {
		return
	}
	data, err := json.Marshal(toMessage(e))
	if err != nil {
		s.log.Error("Failed to encode event", zap.Stringer("kind", e.Kind()), zap.Error(err))
		return
	}

	s.mu.Lock()
	var slow []*client
	for c := range s.clients {
		if !c.enqueue(data) {
			slow = append(slow, c)
		}
	}
	s.mu.Unlock()

	for _, c := range slow {
		s.drop(c, "send queue full")
	}
}

var _ events.Publisher = (*Server)(nil)

// add registers c and reserves its two pump goroutines. It reports false
// once Shutdown has begun.
func (s *Server) add(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.clients[c] = struct{}{}
	s.wg.Add(2)
	return true
}

func (s *Server) drop(c *client, reason string) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if ok {
		c.close()
		s.log.Info("Client dropped", zap.String("remote_addr", c.remote), zap.String("reason", reason))
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}

	c := newClient(conn, r.RemoteAddr, s.config.QueueSize)
	if !s.add(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	logging.LogConnection(s.log, c.remote, "websocket_connected")

	go func() {
		defer s.wg.Done()
		c.writePump()
	}()
	go func() {
		defer s.wg.Done()
		s.readPump(c)
		s.drop(c, "closed by peer")
		logging.LogConnection(s.log, c.remote, "websocket_closed")
	}()
}

func (s *Server) serveDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.devices())
}

func (s *Server) devices() []events.DeviceState {
	out := []events.DeviceState{}
	if s.config.Hubs == nil {
		return out
	}
	for _, h := range s.config.Hubs.All() {
		out = append(out, h.Devices()...)
	}
	return out
}

func (s *Server) readPump(c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var cmd Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			var syntax *json.SyntaxError
			var typ *json.UnmarshalTypeError
			if errors.As(err, &syntax) || errors.As(err, &typ) {
				s.reply(c, Reply{Error: "invalid command: " + err.Error()})
				continue
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("Read failed", zap.String("remote_addr", c.remote), zap.Error(err))
			}
			return
		}
		s.reply(c, s.execute(cmd))
	}
}

func (s *Server) reply(c *client, r Reply) {
	data, err := json.Marshal(r)
	if err != nil {
		s.log.Error("Failed to encode reply", zap.Error(err))
		return
	}
	if !c.enqueue(data) {
		s.drop(c, "send queue full")
	}
}

// execute runs one command and builds its reply.
func (s *Server) execute(cmd Command) Reply {
	reply := Reply{ID: cmd.ID}

	if cmd.Op == "list" {
		reply.OK = true
		reply.Devices = s.devices()
		return reply
	}

	b, err := s.findBulb(cmd.Hub, cmd.Device)
	if err != nil {
		reply.Error = err.Error()
		return reply
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ResponseTimeout)
	defer cancel()

	switch cmd.Op {
	case "power":
		var state protocol.PowerState
		if state, err = protocol.ParsePowerState(cmd.State); err == nil {
			err = b.SetPower(ctx, state)
		}
	case "color":
		if cmd.Color == nil {
			err = errors.New("color: missing color")
			break
		}
		fade := s.config.Fade
		if cmd.FadeMS != nil {
			fade = time.Duration(*cmd.FadeMS) * time.Millisecond
		}
		err = b.SetColorFade(ctx, *cmd.Color, fade)
	case "dim":
		err = b.SetDim(ctx, cmd.Dim, time.Duration(cmd.DurationMS)*time.Millisecond)
	case "label":
		err = b.SetLabel(ctx, cmd.Label)
	case "refresh":
		var state events.DeviceState
		if state, err = b.Refresh(ctx); err == nil {
			reply.Device = &state
		}
	default:
		err = fmt.Errorf("unknown op %q", cmd.Op)
	}

	if err != nil {
		s.log.Debug("Command failed", zap.String("op", cmd.Op), zap.String("device", cmd.Device), zap.Error(err))
		reply.Error = err.Error()
		return reply
	}
	reply.OK = true
	return reply
}

// findBulb resolves a device on the named hub, or on whichever connected
// hub knows it when hubAddr is empty.
func (s *Server) findBulb(hubAddr, device string) (*hub.Bulb, error) {
	addr, err := field.ParseAddress(device)
	if err != nil {
		return nil, err
	}
	if s.config.Hubs == nil {
		return nil, errors.New("no hubs")
	}
	for _, h := range s.config.Hubs.All() {
		if hubAddr != "" && h.Addr() != hubAddr {
			continue
		}
		if hubAddr != "" {
			return h.Bulb(addr), nil
		}
		if _, ok := h.Device(addr); ok {
			return h.Bulb(addr), nil
		}
	}
	if hubAddr != "" {
		return nil, fmt.Errorf("unknown hub %s", hubAddr)
	}
	return nil, fmt.Errorf("device %s not found on any hub", addr)
}
