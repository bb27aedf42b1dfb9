// Package protocol implements the LIFX LAN v1 binary packet format.
//
// This package handles parsing, validation, and construction of the packets
// exchanged with LIFX hubs over UDP (discovery) and TCP (control).
//
// # Frame Format
//
// Every packet starts with a 36-byte preamble:
//   - Size: 2 bytes (little-endian), total packet length including itself
//   - Protocol: 2 bytes (little-endian), 0x3400 for most packets
//   - Reserved: 4 bytes
//   - Target: 6-byte device address, zero for broadcast
//   - Reserved: 2 bytes
//   - Site: 6-byte hub address
//   - Reserved: 2 bytes
//   - Timestamp: 8 bytes (big-endian), always zero on send
//   - Type: 2 bytes (little-endian)
//   - Reserved: 2 bytes
//
// The type-specific payload follows immediately. On a TCP stream the size
// field doubles as the frame length prefix.
//
// # Message Types
//
// The catalogue covers discovery (GetService/StateService), power, label,
// tags, firmware and wifi queries, and the light commands SetLightColor,
// SetDimAbsolute and the LightState status packet. Each payload declares
// the response types it is guaranteed to receive, which the response
// package uses for correlation.
//
// # Usage Example - Parsing
//
//	reg := protocol.DefaultRegistry()
//	frame, err := protocol.ReadFrame(conn)
//	if err != nil {
//	    return err
//	}
//	pkt, err := reg.Parse(frame.Raw)
//	if errors.Is(err, protocol.ErrUnknownType) {
//	    // reserved or unimplemented code, drop it
//	}
//	if state, ok := protocol.As[*protocol.LightState](pkt); ok {
//	    fmt.Println(state.Label, state.Power)
//	}
//
// # Usage Example - Construction
//
//	pkt := protocol.New(&protocol.SetDimAbsolute{Dim: 0x1234, Duration: 1000}, bulb)
//	pkt.Header.Site = hubSite
//	data, err := pkt.Marshal()
//
// Marshal always recomputes the size and type fields from the payload.
//
// # Error Handling
//
// The package distinguishes between:
//   - Unknown types (ErrUnknownType): expected, callers drop the frame
//   - Framing errors (ErrFrameTooShort, ErrFrameTruncated): the stream is unusable
//   - Payload errors (ErrPayloadLength, ErrInvalidPowerState): a single bad packet
//
// # Thread Safety
//
// Registry is safe for concurrent use. Packets are plain values and must not
// be shared between goroutines while being marshaled.
package protocol
