// Package capture records raw LIFX frames to a CBOR file and reads them
// back for offline decoding.
package capture

import (
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Direction indicates frame flow relative to this client.
type Direction uint8

const (
	DirectionIn        Direction = 0 // Read from a hub stream
	DirectionOut       Direction = 1 // Written to a hub stream
	DirectionBroadcast Direction = 2 // Sent or received on the discovery socket
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "in"
	case DirectionOut:
		return "out"
	case DirectionBroadcast:
		return "broadcast"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// ParseDirection is the inverse of String.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "in":
		return DirectionIn, nil
	case "out":
		return DirectionOut, nil
	case "broadcast":
		return DirectionBroadcast, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// Record is one captured frame. CBOR encoding uses integer keys for
// compactness.
type Record struct {
	// Time the frame was read or written (nanosecond precision).
	Time time.Time `cbor:"1,keyasint"`

	// HubID identifies the hub connection (UUID), empty for discovery.
	HubID string `cbor:"2,keyasint,omitempty"`

	// Remote is the peer address (IP:port).
	Remote string `cbor:"3,keyasint,omitempty"`

	Direction Direction `cbor:"4,keyasint"`

	// Type is the packet type code from the preamble.
	Type uint16 `cbor:"5,keyasint"`

	// Frame is the complete frame, length prefix included.
	Frame []byte `cbor:"6,keyasint"`
}

// Recorder receives captured frames. Implementations must be safe for
// concurrent use and must not block the caller for long.
type Recorder interface {
	Record(Record)
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create capture CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create capture CBOR decoder mode: %v", err))
	}
}

// EncodeRecord encodes one record.
func EncodeRecord(r Record) ([]byte, error) {
	return encMode.Marshal(r)
}

// DecodeRecord decodes one record.
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := decMode.Unmarshal(data, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}

// NewEncoder creates a record encoder writing to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder creates a record decoder reading from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}
