package protocol

import (
	"fmt"
	"slices"
	"sync"

	"github.com/muurk/lifxlan/internal/field"
)

// Constructor returns a new zero-valued payload ready to Decode.
type Constructor func() Payload

// Handler builds a payload from the bytes following the preamble. Types that
// need more than a zero value plus Decode register a Handler directly.
type Handler func(h Header, body []byte) (Payload, error)

// Registry maps type codes to payload handlers. It is safe for concurrent
// use; registration normally happens once at startup.
type Registry struct {
	mu       sync.RWMutex
	handlers map[uint16]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[uint16]Handler)}
}

// DefaultRegistry returns a registry holding the full message catalogue.
// Each call returns a new instance.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for code, ctor := range catalogue {
		if err := r.Register(code, ctor); err != nil {
			panic(err)
		}
	}
	// Hubs echo discovery requests; keep whatever body they carry.
	if err := r.RegisterHandler(TypeGetService, opaqueHandler(TypeGetService)); err != nil {
		panic(err)
	}
	return r
}

var catalogue = map[uint16]Constructor{
	TypeStateService:      func() Payload { return &StateService{} },
	TypeGetMeshFirmware:   func() Payload { return &GetMeshFirmware{} },
	TypeStateMeshFirmware: func() Payload { return &StateMeshFirmware{} },
	TypeGetWifiInfo:       func() Payload { return &GetWifiInfo{} },
	TypeStateWifiInfo:     func() Payload { return &StateWifiInfo{} },
	TypeGetPower:          func() Payload { return &GetPower{} },
	TypeSetPower:          func() Payload { return &SetPower{} },
	TypeStatePower:        func() Payload { return &StatePower{} },
	TypeGetLabel:          func() Payload { return &GetLabel{} },
	TypeSetLabel:          func() Payload { return &SetLabel{} },
	TypeStateLabel:        func() Payload { return &StateLabel{} },
	TypeGetTags:           func() Payload { return &GetTags{} },
	TypeStateTags:         func() Payload { return &StateTags{} },
	TypeGetTagLabels:      func() Payload { return &GetTagLabels{} },
	TypeStateTagLabels:    func() Payload { return &StateTagLabels{} },
	TypeGetLightState:     func() Payload { return &GetLightState{} },
	TypeSetLightColor:     func() Payload { return &SetLightColor{} },
	TypeSetDimAbsolute:    func() Payload { return &SetDimAbsolute{} },
	TypeLightState:        func() Payload { return &LightState{} },
}

func opaqueHandler(code uint16) Handler {
	return func(_ Header, body []byte) (Payload, error) {
		p := &Opaque{Code: code}
		return p, p.Decode(field.NewReader(body))
	}
}

// Register adds a payload constructor for code. The constructor must return
// a non-nil payload whose Type() equals code.
func (r *Registry) Register(code uint16, ctor Constructor) error {
	if ctor == nil {
		return fmt.Errorf("register 0x%02x: nil constructor", code)
	}
	probe := ctor()
	if probe == nil {
		return fmt.Errorf("register 0x%02x: constructor returned nil", code)
	}
	if probe.Type() != code {
		return fmt.Errorf("%w: constructor for 0x%02x builds %s", ErrTypeMismatch, code, TypeName(probe.Type()))
	}
	return r.RegisterHandler(code, func(_ Header, body []byte) (Payload, error) {
		p := ctor()
		if len(body) < p.Len() {
			return nil, fmt.Errorf("%w: %s needs %d payload bytes, have %d",
				ErrPayloadLength, TypeName(code), p.Len(), len(body))
		}
		if err := p.Decode(field.NewReader(body)); err != nil {
			return nil, err
		}
		return p, nil
	})
}

// RegisterHandler adds a bespoke handler for code.
func (r *Registry) RegisterHandler(code uint16, h Handler) error {
	if h == nil {
		return fmt.Errorf("register 0x%02x: nil handler", code)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[code]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, TypeName(code))
	}
	r.handlers[code] = h
	return nil
}

// Lookup returns the handler for code. A missing handler is a normal
// condition: the protocol has many reserved and unimplemented codes.
func (r *Registry) Lookup(code uint16) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[code]
	return h, ok
}

// Known reports whether code has a handler.
func (r *Registry) Known(code uint16) bool {
	_, ok := r.Lookup(code)
	return ok
}

// Types returns the registered codes in ascending order.
func (r *Registry) Types() []uint16 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]uint16, 0, len(r.handlers))
	for code := range r.handlers {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

// Parse decodes a complete frame. It returns ErrUnknownType for codes with
// no handler, which callers are expected to drop quietly.
func (r *Registry) Parse(frame []byte) (*Packet, error) {
	h, err := ParseHeader(frame)
	if err != nil {
		return nil, err
	}
	if int(h.Size) > len(frame) {
		return nil, fmt.Errorf("%w: header declares %d bytes, have %d", ErrFrameTruncated, h.Size, len(frame))
	}
	handler, ok := r.Lookup(h.Type)
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownType, h.Type)
	}

	end := len(frame)
	if h.Size >= HeaderLen {
		end = int(h.Size)
	}
	payload, err := handler(h, frame[HeaderLen:end])
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", TypeName(h.Type), err)
	}
	return &Packet{Header: h, Payload: payload}, nil
}
