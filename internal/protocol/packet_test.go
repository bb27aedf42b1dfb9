package protocol

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/muurk/lifxlan/internal/field"
)

var (
	testBulb = field.Address{0xD0, 0x73, 0xD5, 0x01, 0x02, 0x03}
	testSite = field.Address{0x4C, 0x49, 0x46, 0x58, 0x56, 0x32}
)

func TestSetDimAbsolutePayload(t *testing.T) {
	p := New(&SetDimAbsolute{Dim: 0x1234, Duration: 1000}, testBulb)
	data := mustMarshal(t, p)

	want := []byte{0x34, 0x12, 0xE8, 0x03, 0x00, 0x00}
	if got := data[HeaderLen:]; !bytes.Equal(got, want) {
		t.Errorf("payload = % X, want % X", got, want)
	}
}

func TestHeaderLayout(t *testing.T) {
	p := New(&StatePower{State: PowerOn}, testBulb)
	p.Header.Site = testSite
	data := mustMarshal(t, p)

	checks := []struct {
		name   string
		offset int
		want   []byte
	}{
		{"size", 0, []byte{38, 0}},
		{"protocol", 2, []byte{0x00, 0x34}},
		{"reserved1", 4, []byte{0, 0, 0, 0}},
		{"target", 8, testBulb[:]},
		{"reserved2", 14, []byte{0, 0}},
		{"site", 16, testSite[:]},
		{"reserved3", 22, []byte{0, 0}},
		{"timestamp", 24, make([]byte, 8)},
		{"type", 32, []byte{byte(TypeStatePower), 0}},
		{"reserved4", 34, []byte{0, 0}},
		{"power", 36, []byte{0xFF, 0xFF}},
	}
	for _, c := range checks {
		got := data[c.offset : c.offset+len(c.want)]
		if !bytes.Equal(got, c.want) {
			t.Errorf("%s at %d = % X, want % X", c.name, c.offset, got, c.want)
		}
	}
}

func TestMarshalRecomputesSizeAndType(t *testing.T) {
	p := New(&GetLabel{}, testBulb)
	p.Header.Size = 999
	p.Header.Type = TypeLightState

	data := mustMarshal(t, p)
	if len(data) != HeaderLen {
		t.Fatalf("len = %d, want %d", len(data), HeaderLen)
	}
	h, err := ParseHeader(data)
	if err != nil {
		t.Fatal(err)
	}
	if h.Size != HeaderLen || h.Type != TypeGetLabel {
		t.Errorf("header size=%d type=0x%02x, want %d/0x%02x", h.Size, h.Type, HeaderLen, TypeGetLabel)
	}
}

func TestSetPowerProtocolTag(t *testing.T) {
	data := mustMarshal(t, New(&SetPower{State: PowerOff}, testBulb))
	h, _ := ParseHeader(data)
	if h.Protocol != 0x1400 {
		t.Errorf("protocol = 0x%04x, want 0x1400", h.Protocol)
	}
}

func TestMarshalRejectsMalformedCommands(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		wantErr error
	}{
		{"unknown power state", &SetPower{State: 0x1234}, ErrInvalidPowerState},
		{"label too long", &SetLabel{Label: strings.Repeat("x", LabelLen+1)}, ErrPayloadLength},
		{"short payload", shortPayload{}, ErrPayloadLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.payload, testBulb).Marshal()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Marshal() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// shortPayload declares more bytes than it writes.
type shortPayload struct{}

func (shortPayload) Type() uint16                { return 0x70 }
func (shortPayload) Len() int                    { return 4 }
func (shortPayload) Decode(*field.Reader) error  { return nil }
func (shortPayload) ExpectedResponses() []uint16 { return nil }
func (shortPayload) Encode(w *field.Writer) error {
	w.Zero(2)
	return nil
}

func TestCatalogueRoundTrip(t *testing.T) {
	reg := DefaultRegistry()

	payloads := []Payload{
		&StateService{Service: ServiceTCP, Port: 56700},
		&GetMeshFirmware{},
		&StateMeshFirmware{
			Build:   FirmwareStamp{Second: 1, Minute: 2, Hour: 3, Day: 4, Month: "Jan", Year: 14},
			Install: FirmwareStamp{Second: 5, Minute: 6, Hour: 7, Day: 8, Month: "Feb", Year: 14},
			Version: 0x00010002,
		},
		&GetWifiInfo{},
		&StateWifiInfo{Signal: 1.5e-6, RX: 10, TX: 20, MCUTemperature: 40},
		&GetPower{},
		&SetPower{State: PowerOn},
		&StatePower{State: PowerOff},
		&GetLabel{},
		&SetLabel{Label: "Desk"},
		&StateLabel{Label: strings.Repeat("L", LabelLen)},
		&GetTags{},
		&StateTags{Tags: 0x8000000000000001},
		&GetTagLabels{Tags: 3},
		&StateTagLabels{Tags: 3, Label: "Wohnzimmer ü"},
		&GetLightState{},
		&SetLightColor{Stream: 0, Color: Color{Hue: 0xFFFF, Saturation: 0x8000, Brightness: 1, Kelvin: 3500}, Fade: 1000},
		&SetDimAbsolute{Dim: 0x1234, Duration: 1000},
		&LightState{
			Color: Color{Hue: 100, Saturation: 200, Brightness: 300, Kelvin: 6500},
			Dim:   7,
			Power: PowerOn,
			Label: "Hall",
			Tags:  0xFF,
		},
	}

	for _, payload := range payloads {
		t.Run(TypeName(payload.Type()), func(t *testing.T) {
			p := New(payload, testBulb)
			p.Header.Site = testSite
			data := mustMarshal(t, p)

			if len(data) != HeaderLen+payload.Len() {
				t.Fatalf("len = %d, want %d", len(data), HeaderLen+payload.Len())
			}

			got, err := reg.Parse(data)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got.Header != p.Header {
				t.Errorf("header = %+v, want %+v", got.Header, p.Header)
			}
			if !reflect.DeepEqual(got.Payload, payload) {
				t.Errorf("payload = %v, want %v", got.Payload, payload)
			}
		})
	}
}

func TestPeekType(t *testing.T) {
	data := mustMarshal(t, New(&LightState{}, testBulb))
	code, err := PeekType(data)
	if err != nil || code != TypeLightState {
		t.Errorf("PeekType() = 0x%02x, %v", code, err)
	}
	if _, err := PeekType(data[:33]); !errors.Is(err, ErrFrameTooShort) {
		t.Errorf("PeekType(short) error = %v, want ErrFrameTooShort", err)
	}
}

func TestUnknownPowerStateDecodes(t *testing.T) {
	p := New(&StatePower{State: 0x1234}, testBulb)
	got, err := DefaultRegistry().Parse(mustMarshal(t, p))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	state, ok := As[*StatePower](got)
	if !ok {
		t.Fatalf("payload is %T", got.Payload)
	}
	if state.State.Known() {
		t.Error("0x1234 should not be a known power state")
	}
}

func TestParsePowerState(t *testing.T) {
	for _, s := range []string{"on", "ON", " true ", "1"} {
		if p, err := ParsePowerState(s); err != nil || p != PowerOn {
			t.Errorf("ParsePowerState(%q) = %v, %v", s, p, err)
		}
	}
	for _, s := range []string{"off", "false", "0"} {
		if p, err := ParsePowerState(s); err != nil || p != PowerOff {
			t.Errorf("ParsePowerState(%q) = %v, %v", s, p, err)
		}
	}
	if _, err := ParsePowerState("dim"); !errors.Is(err, ErrInvalidPowerState) {
		t.Errorf("ParsePowerState(dim) error = %v", err)
	}
}
