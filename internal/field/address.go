package field

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLen is the length of a device address in bytes.
const AddressLen = 6

// Address is a 6-byte device hardware address. The zero value means
// broadcast (or unset) on the wire.
type Address [AddressLen]byte

// String returns the canonical colon separated upper-case hex form,
// e.g. "D0:73:D5:01:02:03".
func (a Address) String() string {
	var sb strings.Builder
	sb.Grow(AddressLen*3 - 1)
	for i, b := range a {
		if i > 0 {
			sb.WriteByte(':')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses a device address. Hex digits are case-insensitive and
// may be separated by ':' or '-', or not separated at all.
func ParseAddress(s string) (Address, error) {
	var a Address
	clean := strings.NewReplacer(":", "", "-", "").Replace(strings.TrimSpace(s))
	if len(clean) != AddressLen*2 {
		return a, fmt.Errorf("invalid device address %q: want %d hex digits", s, AddressLen*2)
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return a, fmt.Errorf("invalid device address %q: %w", s, err)
	}
	copy(a[:], b)
	return a, nil
}

// AddressField is the 6-byte device address codec.
func AddressField() Field[Address] {
	return Field[Address]{
		length: AddressLen,
		decode: func(b []byte) Address {
			var a Address
			copy(a[:], b)
			return a
		},
		encode: func(dst []byte, v Address) { copy(dst, v[:]) },
	}
}
