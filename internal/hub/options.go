package hub

import (
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/lifxlan/internal/capture"
	"github.com/muurk/lifxlan/internal/events"
	"github.com/muurk/lifxlan/internal/logging"
	"github.com/muurk/lifxlan/internal/protocol"
)

// DefaultDialTimeout bounds Connect when the caller's context has no deadline.
const DefaultDialTimeout = 5 * time.Second

type options struct {
	dialer      Dialer
	dialTimeout time.Duration
	registry    *protocol.Registry
	notifier    events.Publisher
	recorder    capture.Recorder
	logger      *zap.Logger
}

func defaultOptions() *options {
	return &options{
		dialer:      &net.Dialer{},
		dialTimeout: DefaultDialTimeout,
		registry:    protocol.DefaultRegistry(),
		logger:      logging.Named("hub"),
	}
}

// Option configures a Conn.
type Option func(*options)

// WithDialer replaces the TCP dialer.
func WithDialer(d Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithDialTimeout sets the Connect timeout. Zero disables it.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithRegistry sets the packet registry used to parse incoming frames.
func WithRegistry(r *protocol.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithNotifier sets the event publisher.
func WithNotifier(p events.Publisher) Option {
	return func(o *options) { o.notifier = p }
}

// WithRecorder captures every frame sent and received.
func WithRecorder(r capture.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}
