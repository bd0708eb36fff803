package codec

import (
	"encoding/binary"
	"fmt"
)

// Settings is one snapshot of everything the focuser reports.
type Settings struct {
	CurrentPosition uint16
	TargetPosition  uint16
	MaxTravel       uint16
	MicronsPerStep  uint16
	Backlash        uint16
	Direction       Direction
	// Speed is 1..5, zero when the layout does not carry it.
	Speed    uint8
	ADC1Mean uint16
	ADC2Mean uint16
	// DataCount increments on the device for every new sample.
	DataCount uint8
	// Moving is the hardware motion flag, only reported by HID devices.
	Moving bool
	Layout string
}

type field struct {
	width int
	get   func(*Settings) uint16
	set   func(*Settings, uint16)
}

var (
	fCur      = field{2, func(s *Settings) uint16 { return s.CurrentPosition }, func(s *Settings, v uint16) { s.CurrentPosition = v }}
	fSet      = field{2, func(s *Settings) uint16 { return s.TargetPosition }, func(s *Settings, v uint16) { s.TargetPosition = v }}
	fMax      = field{2, func(s *Settings) uint16 { return s.MaxTravel }, func(s *Settings, v uint16) { s.MaxTravel = v }}
	fMicrons  = field{2, func(s *Settings) uint16 { return s.MicronsPerStep }, func(s *Settings, v uint16) { s.MicronsPerStep = v }}
	fBacklash = field{2, func(s *Settings) uint16 { return s.Backlash }, func(s *Settings, v uint16) { s.Backlash = v }}
	fADC1     = field{2, func(s *Settings) uint16 { return s.ADC1Mean }, func(s *Settings, v uint16) { s.ADC1Mean = v }}
	fADC2     = field{2, func(s *Settings) uint16 { return s.ADC2Mean }, func(s *Settings, v uint16) { s.ADC2Mean = v }}
	fDir      = field{1, func(s *Settings) uint16 { return uint16(s.Direction) }, func(s *Settings, v uint16) { s.Direction = Direction(v) }}
	fCount    = field{1, func(s *Settings) uint16 { return uint16(s.DataCount) }, func(s *Settings, v uint16) { s.DataCount = uint8(v) }}
)

// Layout is one firmware revision's settings block. Fields are packed with no padding.
type Layout struct {
	Name   string
	fields []field
}

var (
	// LayoutV1 is the original fusion block: four words, direction and data count.
	LayoutV1 = &Layout{Name: "fusion-v1", fields: []field{fCur, fSet, fMax, fMicrons, fDir, fCount}}
	// LayoutV2 adds backlash.
	LayoutV2 = &Layout{Name: "fusion-v2", fields: []field{fCur, fSet, fMax, fMicrons, fBacklash, fDir, fCount}}
	// LayoutV3 adds the two ADC averages.
	LayoutV3 = &Layout{Name: "fusion-v3", fields: []field{fCur, fSet, fMax, fMicrons, fBacklash, fADC1, fADC2, fDir, fCount}}

	Layouts = []*Layout{LayoutV1, LayoutV2, LayoutV3}
)

// Size is the exact width of the block in bytes.
func (l *Layout) Size() int {
	n := 0
	for _, f := range l.fields {
		n += f.width
	}
	return n
}

// Decode unpacks b into a snapshot. b must be exactly Size() bytes long.
func (l *Layout) Decode(order binary.ByteOrder, b []byte) (Settings, error) {
	if len(b) != l.Size() {
		return Settings{}, &LengthError{Cmd: GetSettings, Want: l.Size(), Got: len(b)}
	}
	s := Settings{Layout: l.Name}
	off := 0
	for _, f := range l.fields {
		if f.width == 2 {
			f.set(&s, order.Uint16(b[off:]))
		} else {
			f.set(&s, uint16(b[off]))
		}
		off += f.width
	}
	return s, nil
}

// Encode packs s the way the firmware would send it.
func (l *Layout) Encode(order binary.ByteOrder, s Settings) []byte {
	b := make([]byte, l.Size())
	off := 0
	for _, f := range l.fields {
		if f.width == 2 {
			order.PutUint16(b[off:], f.get(&s))
		} else {
			b[off] = byte(f.get(&s))
		}
		off += f.width
	}
	return b
}

// LayoutForSize picks the layout whose block is n bytes wide.
func LayoutForSize(n int) (*Layout, error) {
	for _, l := range Layouts {
		if l.Size() == n {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownSize, n)
}

// LayoutByName looks up a layout by its config name.
func LayoutByName(name string) (*Layout, error) {
	for _, l := range Layouts {
		if l.Name == name {
			return l, nil
		}
	}
	return nil, fmt.Errorf("unknown settings layout %q", name)
}
