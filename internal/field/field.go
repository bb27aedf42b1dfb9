package field

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// ErrShortBuffer is returned when a read needs more bytes than remain.
var ErrShortBuffer = errors.New("short buffer")

// Field converts between a value and a fixed-length byte sequence.
type Field[T any] struct {
	length int
	decode func([]byte) T
	encode func([]byte, T)
}

// Len returns the encoded length in bytes.
func (f Field[T]) Len() int { return f.length }

// Decode decodes exactly Len() bytes from the start of b.
func (f Field[T]) Decode(b []byte) (T, error) {
	var zero T
	if len(b) < f.length {
		return zero, fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, f.length, len(b))
	}
	return f.decode(b[:f.length]), nil
}

// Encode returns the Len()-byte encoding of v.
func (f Field[T]) Encode(v T) []byte {
	out := make([]byte, f.length)
	f.encode(out, v)
	return out
}

// Read decodes the field at the reader's position and advances it.
func (f Field[T]) Read(r *Reader) (T, error) {
	var zero T
	b, err := r.Next(f.length)
	if err != nil {
		return zero, err
	}
	return f.decode(b), nil
}

// Write appends the encoding of v to w.
func (f Field[T]) Write(w *Writer, v T) {
	f.encode(w.grow(f.length), v)
}

// Little returns a field that stores f's encoding in reverse byte order.
func Little[T any](f Field[T]) Field[T] {
	return Field[T]{
		length: f.length,
		decode: func(b []byte) T {
			return f.decode(reversed(b))
		},
		encode: func(dst []byte, v T) {
			f.encode(dst, v)
			reverse(dst)
		},
	}
}

func reversed(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	reverse(out)
	return out
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// Uint8 is a single unsigned byte.
func Uint8() Field[uint8] {
	return Field[uint8]{
		length: 1,
		decode: func(b []byte) uint8 { return b[0] },
		encode: func(dst []byte, v uint8) { dst[0] = v },
	}
}

// Uint16 is a big-endian 16-bit unsigned integer.
func Uint16() Field[uint16] {
	return Field[uint16]{
		length: 2,
		decode: binary.BigEndian.Uint16,
		encode: binary.BigEndian.PutUint16,
	}
}

// Uint32 is a big-endian 32-bit unsigned integer.
func Uint32() Field[uint32] {
	return Field[uint32]{
		length: 4,
		decode: binary.BigEndian.Uint32,
		encode: binary.BigEndian.PutUint32,
	}
}

// Uint64 is a big-endian 64-bit unsigned integer.
func Uint64() Field[uint64] {
	return Field[uint64]{
		length: 8,
		decode: binary.BigEndian.Uint64,
		encode: binary.BigEndian.PutUint64,
	}
}

// Float32 is a big-endian IEEE-754 single precision float.
func Float32() Field[float32] {
	return Field[float32]{
		length: 4,
		decode: func(b []byte) float32 {
			return math.Float32frombits(binary.BigEndian.Uint32(b))
		},
		encode: func(dst []byte, v float32) {
			binary.BigEndian.PutUint32(dst, math.Float32bits(v))
		},
	}
}

// Bytes is an opaque block of n bytes. Shorter values are zero padded.
func Bytes(n int) Field[[]byte] {
	return Field[[]byte]{
		length: n,
		decode: func(b []byte) []byte {
			out := make([]byte, len(b))
			copy(out, b)
			return out
		},
		encode: func(dst []byte, v []byte) { copy(dst, v) },
	}
}

// Charset selects how Text fields map between strings and bytes.
type Charset int

const (
	// ASCII maps every byte above 0x7F to '?' on encode and to U+FFFD on decode.
	ASCII Charset = iota
	// UTF8 stores strings verbatim.
	UTF8
)

// String returns the charset name.
func (c Charset) String() string {
	switch c {
	case ASCII:
		return "US-ASCII"
	case UTF8:
		return "UTF-8"
	default:
		return fmt.Sprintf("Charset(%d)", int(c))
	}
}

// Text is an n-byte string field padded with NUL bytes. Trailing NULs are
// removed on decode.
func Text(n int, cs Charset) Field[string] {
	return Field[string]{
		length: n,
		decode: func(b []byte) string {
			var s string
			if cs == ASCII {
				s = decodeASCII(b)
			} else {
				s = string(b)
			}
			return strings.TrimRight(s, "\x00")
		},
		encode: func(dst []byte, v string) {
			if cs == ASCII {
				copy(dst, encodeASCII(v))
				return
			}
			copy(dst, v)
		},
	}
}

func decodeASCII(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		if c > 0x7F {
			sb.WriteRune(utf8.RuneError)
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func encodeASCII(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0x7F {
			out = append(out, '?')
			continue
		}
		out = append(out, byte(r))
	}
	return out
}
