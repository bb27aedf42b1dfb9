package protocol

import (
	"errors"
	"fmt"

	"github.com/muurk/lifxlan/internal/field"
)

// Wire constants
const (
	HeaderLen  = 36    // Fixed preamble length
	TypeOffset = 32    // Offset of the little-endian type code within the preamble
	Port       = 56700 // UDP discovery port
)

// DefaultProtocol is the protocol tag stamped on outgoing packets.
const DefaultProtocol uint16 = 0x3400

var (
	ErrUnknownType       = errors.New("unknown packet type")
	ErrFrameTooShort     = errors.New("frame shorter than preamble")
	ErrFrameTruncated    = errors.New("frame truncated")
	ErrPayloadLength     = errors.New("payload length mismatch")
	ErrInvalidPowerState = errors.New("invalid power state")
	ErrTypeMismatch      = errors.New("constructor type mismatch")
	ErrDuplicateType     = errors.New("packet type already registered")
)

// Preamble field codecs, in wire order.
var (
	hdrSize      = field.Little(field.Uint16())
	hdrProtocol  = field.Little(field.Uint16())
	hdrAddress   = field.AddressField()
	hdrTimestamp = field.Uint64()
	hdrType      = field.Little(field.Uint16())
)

// Header is the 36-byte preamble common to every packet.
type Header struct {
	Size      uint16        // Total encoded length, recomputed on Marshal
	Protocol  uint16        // Protocol/version tag
	Target    field.Address // Destination device, zero = broadcast
	Site      field.Address // Origin hub
	Timestamp uint64        // Always zero on send
	Type      uint16        // Packet type code, recomputed on Marshal
}

func (h Header) write(w *field.Writer) {
	hdrSize.Write(w, h.Size)
	hdrProtocol.Write(w, h.Protocol)
	w.Zero(4)
	hdrAddress.Write(w, h.Target)
	w.Zero(2)
	hdrAddress.Write(w, h.Site)
	w.Zero(2)
	hdrTimestamp.Write(w, h.Timestamp)
	hdrType.Write(w, h.Type)
	w.Zero(2)
}

// ParseHeader decodes the preamble at the start of frame.
func ParseHeader(frame []byte) (Header, error) {
	var h Header
	if len(frame) < HeaderLen {
		return h, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(frame))
	}
	d := newDecoder(frame)
	h.Size = read(d, hdrSize)
	h.Protocol = read(d, hdrProtocol)
	d.skip(4)
	h.Target = read(d, hdrAddress)
	d.skip(2)
	h.Site = read(d, hdrAddress)
	d.skip(2)
	h.Timestamp = read(d, hdrTimestamp)
	h.Type = read(d, hdrType)
	return h, d.err
}

// PeekType returns the type code of frame without parsing it.
func PeekType(frame []byte) (uint16, error) {
	if len(frame) < TypeOffset+2 {
		return 0, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(frame))
	}
	return hdrType.Decode(frame[TypeOffset:])
}

// Payload is the type-specific body of a packet.
type Payload interface {
	// Type returns the packet type code.
	Type() uint16
	// Len returns the encoded payload length in bytes.
	Len() int
	// Decode reads the payload from r, positioned just after the preamble.
	Decode(r *field.Reader) error
	// Encode appends exactly Len() bytes to w. It returns an error when the
	// payload cannot be represented on the wire.
	Encode(w *field.Writer) error
	// ExpectedResponses lists the type codes guaranteed to answer this packet.
	ExpectedResponses() []uint16
}

// protocolTagger is implemented by payloads that need a non-default
// protocol tag.
type protocolTagger interface {
	Protocol() uint16
}

// Packet is a preamble plus payload.
type Packet struct {
	Header  Header
	Payload Payload
}

// New wraps p in a packet addressed to target.
func New(p Payload, target field.Address) *Packet {
	return &Packet{
		Header:  Header{Protocol: protocolFor(p), Target: target},
		Payload: p,
	}
}

func protocolFor(p Payload) uint16 {
	if t, ok := p.(protocolTagger); ok {
		return t.Protocol()
	}
	return DefaultProtocol
}

// Type returns the payload's type code.
func (p *Packet) Type() uint16 {
	return p.Payload.Type()
}

// Len returns the total encoded length.
func (p *Packet) Len() int {
	return HeaderLen + p.Payload.Len()
}

// ExpectedResponses returns the payload's guaranteed response types.
func (p *Packet) ExpectedResponses() []uint16 {
	return p.Payload.ExpectedResponses()
}

// Marshal encodes the packet. Size and Type in the header are recomputed
// from the payload before encoding; a zero Protocol gets the payload's tag.
func (p *Packet) Marshal() ([]byte, error) {
	if p.Payload == nil {
		return nil, errors.New("packet has no payload")
	}
	p.Header.Size = uint16(p.Len())
	p.Header.Type = p.Payload.Type()
	if p.Header.Protocol == 0 {
		p.Header.Protocol = protocolFor(p.Payload)
	}

	w := field.NewWriter(p.Len())
	p.Header.write(w)
	if err := p.Payload.Encode(w); err != nil {
		return nil, fmt.Errorf("encode %s: %w", TypeName(p.Header.Type), err)
	}
	if w.Len() != p.Len() {
		return nil, fmt.Errorf("%w: %s wrote %d payload bytes, declared %d",
			ErrPayloadLength, TypeName(p.Header.Type), w.Len()-HeaderLen, p.Payload.Len())
	}
	return w.Bytes(), nil
}

// String returns a debug representation of the packet
func (p *Packet) String() string {
	return fmt.Sprintf("Packet{type=%s, size=%d, target=%s, site=%s, payload=%v}",
		TypeName(p.Header.Type), p.Header.Size, p.Header.Target, p.Header.Site, p.Payload)
}

// As returns the packet payload as T.
func As[T Payload](p *Packet) (T, bool) {
	var zero T
	if p == nil {
		return zero, false
	}
	v, ok := p.Payload.(T)
	return v, ok
}

// decoder is a field.Reader with a sticky error.
type decoder struct {
	r   *field.Reader
	err error
}

func newDecoder(b []byte) *decoder {
	return &decoder{r: field.NewReader(b)}
}

func (d *decoder) skip(n int) {
	if d.err == nil {
		d.err = d.r.Skip(n)
	}
}

func read[T any](d *decoder, f field.Field[T]) T {
	var zero T
	if d.err != nil {
		return zero
	}
	v, err := f.Read(d.r)
	if err != nil {
		d.err = err
		return zero
	}
	return v
}
