// Package field implements the typed byte codecs used to build LIFX LAN
// protocol frames.
//
// A Field[T] pairs a fixed byte length with an encoder and a decoder. The set
// of primitive codecs is closed and small:
//   - Uint8, Uint16, Uint32, Uint64: big-endian unsigned integers
//   - Float32: big-endian IEEE-754 single precision
//   - Bytes(n): an opaque fixed-length block
//   - Text(n, charset): NUL padded text, ASCII or UTF-8
//   - AddressField: the 6-byte device address
//
// Byte order is orthogonal to the codec. Little wraps any field and reverses
// its encoded representation, so a little-endian uint16 is simply
// Little(Uint16()).
//
// # Reading and Writing
//
// Fields are decoded from a Reader, which tracks a read position over a
// frame, and encoded into a Writer:
//
//	r := field.NewReader(frame)
//	size, err := field.Little(field.Uint16()).Read(r)
//
//	w := field.NewWriter(6)
//	field.Little(field.Uint16()).Write(w, 0x1234)
//	field.Little(field.Uint32()).Write(w, 1000)
//	// w.Bytes() == 34 12 e8 03 00 00
//
// # Widths
//
// Encoding always produces exactly Len() bytes. Text values longer than the
// field are cut at the field width by the fixed-size copy; callers that care
// about where the cut lands (for example in the middle of a UTF-8 sequence)
// must shorten the value themselves before encoding.
//
// # Thread Safety
//
// Field values are immutable and safe for concurrent use. Reader and Writer
// are not.
package field
