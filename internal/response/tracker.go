package response

import (
	"fmt"
	"sync"

	"github.com/muurk/lifxlan/internal/protocol"
)

// Tracker holds the outstanding handles of one connection in insertion
// order. Senders add handles from any goroutine; the receive loop offers
// incoming packets.
type Tracker struct {
	mu      sync.Mutex
	handles []*Handle
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Add records h as outstanding.
func (t *Tracker) Add(h *Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handles = append(t.handles, h)
}

// Remove drops h without signaling it. It reports whether h was present.
func (t *Tracker) Remove(h *Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, cur := range t.handles {
		if cur == h {
			t.handles = append(t.handles[:i], t.handles[i+1:]...)
			return true
		}
	}
	return false
}

// Offer sweeps fulfilled handles, then gives p to the first remaining
// handle that accepts it. Each handle sees p at most once. It returns the
// accepting handle, or ErrUnexpectedResponse when none accepts.
//
// A handle whose caller gave up waiting is still outstanding and can
// consume p.
func (t *Tracker) Offer(p *protocol.Packet) (*Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sweepLocked()
	for _, h := range t.handles {
		if h.TryMatch(p) {
			return h, nil
		}
	}
	return nil, fmt.Errorf("%w: %s from %s matched none of %d outstanding",
		ErrUnexpectedResponse, protocol.TypeName(p.Header.Type), p.Header.Target, len(t.handles))
}

// Sweep removes fulfilled handles and returns how many were removed.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sweepLocked()
}

func (t *Tracker) sweepLocked() int {
	kept := t.handles[:0]
	removed := 0
	for _, h := range t.handles {
		if h.IsFulfilled() {
			removed++
			continue
		}
		kept = append(kept, h)
	}
	for i := len(kept); i < len(t.handles); i++ {
		t.handles[i] = nil
	}
	t.handles = kept
	return removed
}

// Abort fails every outstanding handle with err and empties the tracker.
func (t *Tracker) Abort(err error) {
	t.mu.Lock()
	handles := t.handles
	t.handles = nil
	t.mu.Unlock()

	for _, h := range handles {
		h.Fail(err)
	}
}

// Len returns the number of tracked handles, fulfilled ones included until
// the next sweep.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handles)
}
