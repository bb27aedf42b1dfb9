package discovery

import (
	"time"

	"go.uber.org/zap"

	"github.com/muurk/lifxlan/internal/capture"
	"github.com/muurk/lifxlan/internal/events"
	"github.com/muurk/lifxlan/internal/hub"
	"github.com/muurk/lifxlan/internal/logging"
	"github.com/muurk/lifxlan/internal/protocol"
)

const (
	// DefaultInterval is the time between discovery broadcasts.
	DefaultInterval = time.Second

	// DefaultBroadcastAddress is the limited broadcast address.
	DefaultBroadcastAddress = "255.255.255.255"
)

type options struct {
	broadcast string
	port      int
	interval  time.Duration
	registry  *protocol.Registry
	hubs      *Hubs
	notifier  events.Publisher
	recorder  capture.Recorder
	logger    *zap.Logger
	lock      MulticastLock
	hubOpts   []hub.Option
}

// newOptions applies opts over the defaults. The default registry is only
// built when no option supplies one.
func newOptions(opts []Option) *options {
	o := &options{
		broadcast: DefaultBroadcastAddress,
		port:      protocol.Port,
		interval:  DefaultInterval,
		logger:    logging.Named("discovery"),
		lock:      NopLock{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = protocol.DefaultRegistry()
	}
	if o.hubs == nil {
		o.hubs = NewHubs()
	}
	return o
}

// Option configures a Listener.
type Option func(*options)

// WithBroadcastAddress sets the address discovery requests are sent to.
func WithBroadcastAddress(ip string) Option {
	return func(o *options) { o.broadcast = ip }
}

// WithPort sets the discovery port: the port Listen binds and the
// destination of broadcasts and probes.
func WithPort(port int) Option {
	return func(o *options) { o.port = port }
}

// WithInterval sets the time between discovery broadcasts.
func WithInterval(d time.Duration) Option {
	return func(o *options) { o.interval = d }
}

func WithRegistry(r *protocol.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithHubs shares a hub registry between listeners.
func WithHubs(h *Hubs) Option {
	return func(o *options) { o.hubs = h }
}

// WithNotifier sets the event publisher. Hubs created by the listener
// publish to it too.
func WithNotifier(p events.Publisher) Option {
	return func(o *options) { o.notifier = p }
}

// WithRecorder captures discovery datagrams and the frames of hubs created
// by the listener.
func WithRecorder(r capture.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMulticastLock sets the platform multicast capability.
func WithMulticastLock(l MulticastLock) Option {
	return func(o *options) { o.lock = l }
}

// WithHubOptions adds options for every hub the listener creates.
func WithHubOptions(opts ...hub.Option) Option {
	return func(o *options) { o.hubOpts = append(o.hubOpts, opts...) }
}
