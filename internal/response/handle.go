package response

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/muurk/lifxlan/internal/field"
	"github.com/muurk/lifxlan/internal/protocol"
)

// Correlation errors.
var (
	ErrUnexpectedResponse = errors.New("unexpected response")
	ErrResponseTimeout    = errors.New("response timed out")
	ErrHandleClosed       = errors.New("handle closed")
)

// Option adds expectations to a handle at creation time.
type Option func(*Handle)

// Expect adds a bare expectation for code.
func Expect(code uint16) Option {
	return func(h *Handle) { h.exp.Add(code) }
}

// ExpectFrom adds an expectation for code sent by addr.
func ExpectFrom(code uint16, addr field.Address) Option {
	return func(h *Handle) { h.exp.AddFrom(code, addr) }
}

// Handle tracks the responses to one sent packet. It is signaled exactly
// once: when its expectations are all matched (at creation when there are
// none), or when it is failed by its connection.
type Handle struct {
	id      uuid.UUID
	request *protocol.Packet

	mu        sync.Mutex
	exp       *Expectations
	responses []*protocol.Packet
	done      chan struct{}
	closed    bool
	err       error
}

// NewHandle creates a handle seeded from p's declared responses plus opts.
// A handle left with no expectations is signaled before it is returned.
func NewHandle(p *protocol.Packet, opts ...Option) *Handle {
	h := &Handle{
		id:      uuid.New(),
		request: p,
		exp:     NewExpectations(p.ExpectedResponses()...),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.mu.Lock()
	h.signalIfEmptyLocked()
	h.mu.Unlock()
	return h
}

// ID uniquely identifies the handle in logs and captures.
func (h *Handle) ID() uuid.UUID { return h.id }

// Request returns the packet this handle answers.
func (h *Handle) Request() *protocol.Packet { return h.request }

// Expect adds a bare expectation. It fails once the handle is signaled.
func (h *Handle) Expect(code uint16) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	h.exp.Add(code)
	return nil
}

// ExpectFrom adds a sourced expectation. It fails once the handle is signaled.
func (h *Handle) ExpectFrom(code uint16, addr field.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	h.exp.AddFrom(code, addr)
	return nil
}

// TryMatch consumes one expectation matching p and records p. It reports
// whether p was accepted.
func (h *Handle) TryMatch(p *protocol.Packet) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || !h.exp.Matches(p.Header.Type, p.Header.Target) {
		return false
	}
	h.acceptLocked(p)
	return true
}

func (h *Handle) acceptLocked(p *protocol.Packet) {
	// Matches was checked under the same lock.
	_ = h.exp.Consume(p.Header.Type, p.Header.Target)
	h.responses = append(h.responses, p)
	h.signalIfEmptyLocked()
}

func (h *Handle) signalIfEmptyLocked() {
	if h.exp.Empty() {
		h.closeLocked(nil)
	}
}

func (h *Handle) closeLocked(err error) {
	if h.closed {
		return
	}
	h.closed = true
	h.err = err
	close(h.done)
}

// IsFulfilled reports whether no expectations remain.
func (h *Handle) IsFulfilled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exp.Empty()
}

// Pending returns the number of outstanding expectations.
func (h *Handle) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exp.Len()
}

// Done is closed when the handle is signaled.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the failure the handle was closed with, if any.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Fail signals the handle with err. Waiters return err; later matches are
// refused.
func (h *Handle) Fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeLocked(err)
}

// Await blocks until the handle is fulfilled, failed, or ctx ends. A handle
// with no expectations returns immediately.
//
// Await must not be called from the goroutine that reads the connection:
// that goroutine is the only one that fulfills handles.
func (h *Handle) Await(ctx context.Context) error {
	h.mu.Lock()
	if h.exp.Empty() {
		err := h.err
		h.mu.Unlock()
		return err
	}
	h.mu.Unlock()

	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s still awaiting %d response(s)",
				ErrResponseTimeout, protocol.TypeName(h.request.Type()), h.Pending())
		}
		return ctx.Err()
	}
}

// AwaitTimeout is Await with a deadline of d from now.
func (h *Handle) AwaitTimeout(d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return h.Await(ctx)
}

// Responses returns the packets matched so far, in arrival order.
func (h *Handle) Responses() []*protocol.Packet {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*protocol.Packet, len(h.responses))
	copy(out, h.responses)
	return out
}

// Get returns the first matched response whose payload is a T. Ordering
// among several responses of the same type is best effort.
func Get[T protocol.Payload](h *Handle) (T, bool) {
	for _, p := range h.Responses() {
		if v, ok := protocol.As[T](p); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// GetPacket is Get returning the whole packet, for callers that need the
// header (e.g. the responding device).
func GetPacket[T protocol.Payload](h *Handle) (*protocol.Packet, bool) {
	for _, p := range h.Responses() {
		if _, ok := protocol.As[T](p); ok {
			return p, true
		}
	}
	return nil, false
}

func (h *Handle) String() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fmt.Sprintf("Handle{id=%s, request=%s, pending=%d, responses=%d}",
		h.id, protocol.TypeName(h.request.Type()), h.exp.Len(), len(h.responses))
}
