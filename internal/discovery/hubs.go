package discovery

import (
	"net/netip"
	"sort"
	"sync"

	"github.com/muurk/lifxlan/internal/hub"
)

// hubKey identifies a hub by the address its discovery response came from
// and the control port it advertised.
type hubKey struct {
	source netip.AddrPort
	port   uint32
}

// Hubs is the registry of discovered hubs. It is owned by whoever creates
// it; a Listener uses its own unless one is supplied with WithHubs.
type Hubs struct {
	mu    sync.Mutex
	byKey map[hubKey]*hub.Conn
}

// NewHubs creates an empty registry.
func NewHubs() *Hubs {
	return &Hubs{byKey: make(map[hubKey]*hub.Conn)}
}

// Register returns the hub for (source, port), calling create to build it
// when it is not yet known. created reports whether create was called.
func (h *Hubs) Register(source netip.AddrPort, port uint32, create func() *hub.Conn) (conn *hub.Conn, created bool) {
	key := hubKey{source: source, port: port}

	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.byKey[key]; ok {
		return c, false
	}
	c := create()
	h.byKey[key] = c
	return c, true
}

// Get returns the hub for (source, port).
func (h *Hubs) Get(source netip.AddrPort, port uint32) (*hub.Conn, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.byKey[hubKey{source: source, port: port}]
	return c, ok
}

// All returns the registered hubs ordered by control address.
func (h *Hubs) All() []*hub.Conn {
	h.mu.Lock()
	out := make([]*hub.Conn, 0, len(h.byKey))
	for _, c := range h.byKey {
		out = append(out, c)
	}
	h.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Addr() < out[j].Addr() })
	return out
}

func (h *Hubs) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.byKey)
}

// Purge empties the registry and returns what it held. Connections are
// not closed.
func (h *Hubs) Purge() []*hub.Conn {
	h.mu.Lock()
	old := h.byKey
	h.byKey = make(map[hubKey]*hub.Conn)
	h.mu.Unlock()

	out := make([]*hub.Conn, 0, len(old))
	for _, c := range old {
		out = append(out, c)
	}
	return out
}
