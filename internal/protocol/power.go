package protocol

import (
	"fmt"
	"strings"

	"github.com/muurk/lifxlan/internal/field"
)

// PowerState is the 16-bit on/off code carried by power and status packets.
// Devices occasionally report other values; those decode without error and
// report Known() == false so callers can ignore the update.
type PowerState uint16

const (
	PowerOff PowerState = 0x0000
	PowerOn  PowerState = 0xFFFF
)

// Known reports whether p is PowerOn or PowerOff.
func (p PowerState) Known() bool {
	return p == PowerOn || p == PowerOff
}

// On reports whether p is PowerOn.
func (p PowerState) On() bool { return p == PowerOn }

func (p PowerState) String() string {
	switch p {
	case PowerOn:
		return "on"
	case PowerOff:
		return "off"
	default:
		return fmt.Sprintf("unknown(0x%04x)", uint16(p))
	}
}

// ParsePowerState accepts on/off and the usual synonyms.
func ParsePowerState(s string) (PowerState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "1", "true":
		return PowerOn, nil
	case "off", "0", "false":
		return PowerOff, nil
	}
	return PowerOff, fmt.Errorf("%w: %q", ErrInvalidPowerState, s)
}

// Color is a hue/saturation/brightness/kelvin tuple in wire units
// (0-65535 for the first three, degrees Kelvin for the last).
type Color struct {
	Hue        uint16 `json:"hue"`
	Saturation uint16 `json:"saturation"`
	Brightness uint16 `json:"brightness"`
	Kelvin     uint16 `json:"kelvin"`
}

func (c Color) String() string {
	return fmt.Sprintf("HSBK(%d, %d, %d, %dK)", c.Hue, c.Saturation, c.Brightness, c.Kelvin)
}

func readColor(d *decoder) Color {
	return Color{
		Hue:        read(d, u16le),
		Saturation: read(d, u16le),
		Brightness: read(d, u16le),
		Kelvin:     read(d, u16le),
	}
}

func writeColor(w *field.Writer, c Color) {
	u16le.Write(w, c.Hue)
	u16le.Write(w, c.Saturation)
	u16le.Write(w, c.Brightness)
	u16le.Write(w, c.Kelvin)
}
