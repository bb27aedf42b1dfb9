package protocol

import (
	"fmt"
	"strings"

	"github.com/muurk/lifxlan/internal/field"
)

// Packet type codes
const (
	TypeGetService        uint16 = 0x02 // Discovery request
	TypeStateService      uint16 = 0x03 // Discovery response
	TypeGetMeshFirmware   uint16 = 0x0E
	TypeStateMeshFirmware uint16 = 0x0F
	TypeGetWifiInfo       uint16 = 0x10
	TypeStateWifiInfo     uint16 = 0x11
	TypeGetPower          uint16 = 0x14
	TypeSetPower          uint16 = 0x15
	TypeStatePower        uint16 = 0x16
	TypeGetLabel          uint16 = 0x17
	TypeSetLabel          uint16 = 0x18
	TypeStateLabel        uint16 = 0x19
	TypeGetTags           uint16 = 0x1A
	TypeStateTags         uint16 = 0x1C
	TypeGetTagLabels      uint16 = 0x1D
	TypeStateTagLabels    uint16 = 0x1F
	TypeGetLightState     uint16 = 0x65 // Device status broadcast
	TypeSetLightColor     uint16 = 0x66
	TypeSetDimAbsolute    uint16 = 0x68
	TypeLightState        uint16 = 0x6B // Device status
)

// SetPower uses an older protocol tag than the rest of the catalogue.
const setPowerProtocol uint16 = 0x1400

// LabelLen is the fixed width of device and tag labels.
const LabelLen = 32

var typeNames = map[uint16]string{
	TypeGetService:        "GetService",
	TypeStateService:      "StateService",
	TypeGetMeshFirmware:   "GetMeshFirmware",
	TypeStateMeshFirmware: "StateMeshFirmware",
	TypeGetWifiInfo:       "GetWifiInfo",
	TypeStateWifiInfo:     "StateWifiInfo",
	TypeGetPower:          "GetPower",
	TypeSetPower:          "SetPower",
	TypeStatePower:        "StatePower",
	TypeGetLabel:          "GetLabel",
	TypeSetLabel:          "SetLabel",
	TypeStateLabel:        "StateLabel",
	TypeGetTags:           "GetTags",
	TypeStateTags:         "StateTags",
	TypeGetTagLabels:      "GetTagLabels",
	TypeStateTagLabels:    "StateTagLabels",
	TypeGetLightState:     "GetLightState",
	TypeSetLightColor:     "SetLightColor",
	TypeSetDimAbsolute:    "SetDimAbsolute",
	TypeLightState:        "LightState",
}

// TypeName returns a human-readable name for a type code.
func TypeName(code uint16) string {
	if name, ok := typeNames[code]; ok {
		return fmt.Sprintf("%s(0x%02x)", name, code)
	}
	return fmt.Sprintf("unknown(0x%02x)", code)
}

// TypeByName returns the code of a named packet type, ignoring case.
func TypeByName(name string) (uint16, bool) {
	for code, n := range typeNames {
		if strings.EqualFold(n, name) {
			return code, true
		}
	}
	return 0, false
}

// Payload field codecs
var (
	u8        = field.Uint8()
	u16       = field.Uint16()
	u16le     = field.Little(field.Uint16())
	u32le     = field.Little(field.Uint32())
	u64       = field.Uint64()
	f32le     = field.Little(field.Float32())
	labelText = field.Text(LabelLen, field.ASCII)
	tagText   = field.Text(LabelLen, field.UTF8)
	monthText = field.Little(field.Text(3, field.ASCII))
)

// empty is embedded by payloads without a body.
type empty struct{}

func (empty) Len() int                    { return 0 }
func (empty) Decode(*field.Reader) error  { return nil }
func (empty) Encode(*field.Writer) error  { return nil }
func (empty) ExpectedResponses() []uint16 { return nil }

// GetService is broadcast over UDP to discover hubs. UDP packets cannot
// carry guaranteed responses.
type GetService struct{ empty }

func (*GetService) Type() uint16   { return TypeGetService }
func (*GetService) String() string { return "GetService{}" }

// Service identifiers carried by StateService.
const (
	ServiceUDP = 1
	ServiceTCP = 2
)

// StateService answers GetService with the hub's control port.
type StateService struct {
	Service uint8
	Port    uint32 // Zero means the hub is not ready
}

func (*StateService) Type() uint16                { return TypeStateService }
func (*StateService) Len() int                    { return 5 }
func (*StateService) ExpectedResponses() []uint16 { return nil }

func (m *StateService) Decode(r *field.Reader) error {
	d := &decoder{r: r}
	m.Service = read(d, u8)
	m.Port = read(d, u32le)
	return d.err
}

func (m *StateService) Encode(w *field.Writer) error {
	u8.Write(w, m.Service)
	u32le.Write(w, m.Port)
	return nil
}

func (m *StateService) String() string {
	return fmt.Sprintf("StateService{service=%d, port=%d}", m.Service, m.Port)
}

// GetMeshFirmware requests the mesh firmware build information.
type GetMeshFirmware struct{ empty }

func (*GetMeshFirmware) Type() uint16 { return TypeGetMeshFirmware }
func (*GetMeshFirmware) ExpectedResponses() []uint16 {
	return []uint16{TypeStateMeshFirmware}
}
func (*GetMeshFirmware) String() string { return "GetMeshFirmware{}" }

// FirmwareStamp is a firmware build or install time as reported by the hub.
type FirmwareStamp struct {
	Second, Minute, Hour, Day uint8
	Month                     string // Three-letter English abbreviation
	Year                      uint8  // Two-digit year
}

func (s FirmwareStamp) String() string {
	return fmt.Sprintf("%02d %s %02d %02d:%02d:%02d", s.Day, s.Month, s.Year, s.Hour, s.Minute, s.Second)
}

func readStamp(d *decoder) FirmwareStamp {
	var s FirmwareStamp
	s.Second = read(d, u8)
	s.Minute = read(d, u8)
	s.Hour = read(d, u8)
	s.Day = read(d, u8)
	s.Month = read(d, monthText)
	s.Year = read(d, u8)
	return s
}

func writeStamp(w *field.Writer, s FirmwareStamp) {
	u8.Write(w, s.Second)
	u8.Write(w, s.Minute)
	u8.Write(w, s.Hour)
	u8.Write(w, s.Day)
	monthText.Write(w, s.Month)
	u8.Write(w, s.Year)
}

// StateMeshFirmware reports mesh firmware build details.
type StateMeshFirmware struct {
	Build   FirmwareStamp
	Install FirmwareStamp
	Version uint32
}

func (*StateMeshFirmware) Type() uint16                { return TypeStateMeshFirmware }
func (*StateMeshFirmware) Len() int                    { return 20 }
func (*StateMeshFirmware) ExpectedResponses() []uint16 { return nil }

func (m *StateMeshFirmware) Decode(r *field.Reader) error {
	d := &decoder{r: r}
	m.Build = readStamp(d)
	m.Install = readStamp(d)
	m.Version = read(d, u32le)
	return d.err
}

func (m *StateMeshFirmware) Encode(w *field.Writer) error {
	writeStamp(w, m.Build)
	writeStamp(w, m.Install)
	u32le.Write(w, m.Version)
	return nil
}

func (m *StateMeshFirmware) String() string {
	return fmt.Sprintf("StateMeshFirmware{build=%s, install=%s, version=0x%08x}", m.Build, m.Install, m.Version)
}

// GetWifiInfo requests radio statistics.
type GetWifiInfo struct{ empty }

func (*GetWifiInfo) Type() uint16                { return TypeGetWifiInfo }
func (*GetWifiInfo) ExpectedResponses() []uint16 { return []uint16{TypeStateWifiInfo} }
func (*GetWifiInfo) String() string              { return "GetWifiInfo{}" }

// StateWifiInfo reports radio statistics.
type StateWifiInfo struct {
	Signal         float32
	RX             uint32
	TX             uint32
	MCUTemperature uint16
}

func (*StateWifiInfo) Type() uint16                { return TypeStateWifiInfo }
func (*StateWifiInfo) Len() int                    { return 14 }
func (*StateWifiInfo) ExpectedResponses() []uint16 { return nil }

func (m *StateWifiInfo) Decode(r *field.Reader) error {
	d := &decoder{r: r}
	m.Signal = read(d, f32le)
	m.RX = read(d, u32le)
	m.TX = read(d, u32le)
	m.MCUTemperature = read(d, u16)
	return d.err
}

func (m *StateWifiInfo) Encode(w *field.Writer) error {
	f32le.Write(w, m.Signal)
	u32le.Write(w, m.RX)
	u32le.Write(w, m.TX)
	u16.Write(w, m.MCUTemperature)
	return nil
}

func (m *StateWifiInfo) String() string {
	return fmt.Sprintf("StateWifiInfo{signal=%g, rx=%d, tx=%d, mcu_temp=%d}", m.Signal, m.RX, m.TX, m.MCUTemperature)
}

// GetPower requests a device's power state.
type GetPower struct{ empty }

func (*GetPower) Type() uint16                { return TypeGetPower }
func (*GetPower) ExpectedResponses() []uint16 { return []uint16{TypeStatePower} }
func (*GetPower) String() string              { return "GetPower{}" }

// SetPower switches a device on or off.
type SetPower struct {
	State PowerState
}

func (*SetPower) Type() uint16                { return TypeSetPower }
func (*SetPower) Len() int                    { return 2 }
func (*SetPower) Protocol() uint16            { return setPowerProtocol }
func (*SetPower) ExpectedResponses() []uint16 { return nil }

func (m *SetPower) Decode(r *field.Reader) error {
	v, err := u16.Read(r)
	m.State = PowerState(v)
	return err
}

func (m *SetPower) Encode(w *field.Writer) error {
	if !m.State.Known() {
		return fmt.Errorf("%w: 0x%04x", ErrInvalidPowerState, uint16(m.State))
	}
	u16.Write(w, uint16(m.State))
	return nil
}

func (m *SetPower) String() string { return fmt.Sprintf("SetPower{state=%s}", m.State) }

// StatePower reports a device's power state.
type StatePower struct {
	State PowerState
}

func (*StatePower) Type() uint16                { return TypeStatePower }
func (*StatePower) Len() int                    { return 2 }
func (*StatePower) ExpectedResponses() []uint16 { return nil }

func (m *StatePower) Decode(r *field.Reader) error {
	v, err := u16.Read(r)
	m.State = PowerState(v)
	return err
}

func (m *StatePower) Encode(w *field.Writer) error {
	u16.Write(w, uint16(m.State))
	return nil
}

func (m *StatePower) String() string { return fmt.Sprintf("StatePower{state=%s}", m.State) }

// GetLabel requests a device's label.
type GetLabel struct{ empty }

func (*GetLabel) Type() uint16                { return TypeGetLabel }
func (*GetLabel) ExpectedResponses() []uint16 { return []uint16{TypeStateLabel} }
func (*GetLabel) String() string              { return "GetLabel{}" }

func checkLabel(s string) error {
	if len(s) > LabelLen {
		return fmt.Errorf("%w: label is %d bytes, max %d", ErrPayloadLength, len(s), LabelLen)
	}
	return nil
}

// SetLabel renames a device.
type SetLabel struct {
	Label string
}

func (*SetLabel) Type() uint16                { return TypeSetLabel }
func (*SetLabel) Len() int                    { return LabelLen }
func (*SetLabel) ExpectedResponses() []uint16 { return nil }

func (m *SetLabel) Decode(r *field.Reader) (err error) {
	m.Label, err = labelText.Read(r)
	return err
}

func (m *SetLabel) Encode(w *field.Writer) error {
	if err := checkLabel(m.Label); err != nil {
		return err
	}
	labelText.Write(w, m.Label)
	return nil
}

func (m *SetLabel) String() string { return fmt.Sprintf("SetLabel{label=%q}", m.Label) }

// StateLabel reports a device's label.
type StateLabel struct {
	Label string
}

func (*StateLabel) Type() uint16                { return TypeStateLabel }
func (*StateLabel) Len() int                    { return LabelLen }
func (*StateLabel) ExpectedResponses() []uint16 { return nil }

func (m *StateLabel) Decode(r *field.Reader) (err error) {
	m.Label, err = labelText.Read(r)
	return err
}

func (m *StateLabel) Encode(w *field.Writer) error {
	if err := checkLabel(m.Label); err != nil {
		return err
	}
	labelText.Write(w, m.Label)
	return nil
}

func (m *StateLabel) String() string { return fmt.Sprintf("StateLabel{label=%q}", m.Label) }

// GetTags requests the device's tag bitmask.
type GetTags struct{ empty }

func (*GetTags) Type() uint16                { return TypeGetTags }
func (*GetTags) ExpectedResponses() []uint16 { return []uint16{TypeStateTags} }
func (*GetTags) String() string              { return "GetTags{}" }

// StateTags reports the device's tag bitmask.
type StateTags struct {
	Tags uint64
}

func (*StateTags) Type() uint16                { return TypeStateTags }
func (*StateTags) Len() int                    { return 8 }
func (*StateTags) ExpectedResponses() []uint16 { return nil }

func (m *StateTags) Decode(r *field.Reader) (err error) {
	m.Tags, err = u64.Read(r)
	return err
}

func (m *StateTags) Encode(w *field.Writer) error {
	u64.Write(w, m.Tags)
	return nil
}

func (m *StateTags) String() string { return fmt.Sprintf("StateTags{tags=0x%016x}", m.Tags) }

// GetTagLabels requests the labels of the tags in a bitmask.
type GetTagLabels struct {
	Tags uint64
}

func (*GetTagLabels) Type() uint16                { return TypeGetTagLabels }
func (*GetTagLabels) Len() int                    { return 8 }
func (*GetTagLabels) ExpectedResponses() []uint16 { return []uint16{TypeStateTagLabels} }

func (m *GetTagLabels) Decode(r *field.Reader) (err error) {
	m.Tags, err = u64.Read(r)
	return err
}

func (m *GetTagLabels) Encode(w *field.Writer) error {
	u64.Write(w, m.Tags)
	return nil
}

func (m *GetTagLabels) String() string { return fmt.Sprintf("GetTagLabels{tags=0x%016x}", m.Tags) }

// StateTagLabels reports the label shared by a tag set.
type StateTagLabels struct {
	Tags  uint64
	Label string
}

func (*StateTagLabels) Type() uint16                { return TypeStateTagLabels }
func (*StateTagLabels) Len() int                    { return 8 + LabelLen }
func (*StateTagLabels) ExpectedResponses() []uint16 { return nil }

func (m *StateTagLabels) Decode(r *field.Reader) error {
	d := &decoder{r: r}
	m.Tags = read(d, u64)
	m.Label = read(d, tagText)
	return d.err
}

func (m *StateTagLabels) Encode(w *field.Writer) error {
	if err := checkLabel(m.Label); err != nil {
		return err
	}
	u64.Write(w, m.Tags)
	tagText.Write(w, m.Label)
	return nil
}

func (m *StateTagLabels) String() string {
	return fmt.Sprintf("StateTagLabels{tags=0x%016x, label=%q}", m.Tags, m.Label)
}

// GetLightState asks every device behind a hub (or the target) to report
// its state. Devices answer with LightState but no answer is guaranteed.
type GetLightState struct{ empty }

func (*GetLightState) Type() uint16   { return TypeGetLightState }
func (*GetLightState) String() string { return "GetLightState{}" }

// SetLightColor fades a device to a new color.
type SetLightColor struct {
	Stream uint8
	Color  Color
	Fade   uint32 // Milliseconds
}

func (*SetLightColor) Type() uint16                { return TypeSetLightColor }
func (*SetLightColor) Len() int                    { return 13 }
func (*SetLightColor) ExpectedResponses() []uint16 { return nil }

func (m *SetLightColor) Decode(r *field.Reader) error {
	d := &decoder{r: r}
	m.Stream = read(d, u8)
	m.Color = readColor(d)
	m.Fade = read(d, u32le)
	return d.err
}

func (m *SetLightColor) Encode(w *field.Writer) error {
	u8.Write(w, m.Stream)
	writeColor(w, m.Color)
	u32le.Write(w, m.Fade)
	return nil
}

func (m *SetLightColor) String() string {
	return fmt.Sprintf("SetLightColor{color=%s, fade=%dms}", m.Color, m.Fade)
}

// SetDimAbsolute sets a device's dim level over a duration.
type SetDimAbsolute struct {
	Dim      uint16
	Duration uint32 // Milliseconds
}

func (*SetDimAbsolute) Type() uint16                { return TypeSetDimAbsolute }
func (*SetDimAbsolute) Len() int                    { return 6 }
func (*SetDimAbsolute) ExpectedResponses() []uint16 { return nil }

func (m *SetDimAbsolute) Decode(r *field.Reader) error {
	d := &decoder{r: r}
	m.Dim = read(d, u16le)
	m.Duration = read(d, u32le)
	return d.err
}

func (m *SetDimAbsolute) Encode(w *field.Writer) error {
	u16le.Write(w, m.Dim)
	u32le.Write(w, m.Duration)
	return nil
}

func (m *SetDimAbsolute) String() string {
	return fmt.Sprintf("SetDimAbsolute{dim=%d, duration=%dms}", m.Dim, m.Duration)
}

// LightState is the device status packet.
type LightState struct {
	Color Color
	Dim   uint16
	Power PowerState
	Label string
	Tags  uint64
}

func (*LightState) Type() uint16                { return TypeLightState }
func (*LightState) Len() int                    { return 52 }
func (*LightState) ExpectedResponses() []uint16 { return nil }

func (m *LightState) Decode(r *field.Reader) error {
	d := &decoder{r: r}
	m.Color = readColor(d)
	m.Dim = read(d, u16le)
	m.Power = PowerState(read(d, u16))
	m.Label = read(d, labelText)
	m.Tags = read(d, u64)
	return d.err
}

func (m *LightState) Encode(w *field.Writer) error {
	if err := checkLabel(m.Label); err != nil {
		return err
	}
	writeColor(w, m.Color)
	u16le.Write(w, m.Dim)
	u16.Write(w, uint16(m.Power))
	labelText.Write(w, m.Label)
	u64.Write(w, m.Tags)
	return nil
}

func (m *LightState) String() string {
	return fmt.Sprintf("LightState{label=%q, power=%s, color=%s, dim=%d, tags=0x%016x}",
		m.Label, m.Power, m.Color, m.Dim, m.Tags)
}

// Opaque keeps the raw body of a packet that has no typed decoder.
type Opaque struct {
	Code uint16
	Body []byte
}

func (m *Opaque) Type() uint16              { return m.Code }
func (m *Opaque) Len() int                  { return len(m.Body) }
func (*Opaque) ExpectedResponses() []uint16 { return nil }

func (m *Opaque) Decode(r *field.Reader) error {
	m.Body = append([]byte(nil), r.Rest()...)
	return nil
}

func (m *Opaque) Encode(w *field.Writer) error {
	w.Raw(m.Body)
	return nil
}

func (m *Opaque) String() string {
	return fmt.Sprintf("Opaque{type=0x%02x, body=%x}", m.Code, m.Body)
}
