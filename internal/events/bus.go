package events

import "sync"

// Listener receives events.
type Listener func(Event)

// Publisher is the notification side consumed by hubs and discovery.
type Publisher interface {
	Publish(Event)
}

type subscription struct {
	kind Kind // zero for all kinds
	fn   Listener
}

// Bus is an in-process Publisher with per-kind listeners. The zero value
// is ready to use and a nil *Bus discards events.
type Bus struct {
	mu   sync.RWMutex
	subs []subscription
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// On registers fn for events of kind k.
func (b *Bus) On(k Kind, fn Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{kind: k, fn: fn})
}

// OnAll registers fn for every event.
func (b *Bus) OnAll(fn Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{fn: fn})
}

// Publish delivers e to matching listeners in registration order.
// Listeners may register further listeners; those see the next event.
func (b *Bus) Publish(e Event) {
	if b == nil || e == nil {
		return
	}
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	kind := e.Kind()
	for _, s := range subs {
		if s.kind == 0 || s.kind == kind {
			s.fn(e)
		}
	}
}

// Len returns the number of registered listeners.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
