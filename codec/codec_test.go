package codec

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSMBusEncode(t *testing.T) {
	d := NewSMBus(binary.LittleEndian, LayoutV2)
	for _, test := range []struct {
		cmd  Command
		want Frame
	}{
		{Command{Kind: GetPosition}, Frame{Opcode: 0x04, Request: []byte{0x04}, ResponseLen: 2}},
		{Command{Kind: SetMove, Value: 0x1234}, Frame{Opcode: 0x07, Request: []byte{0x07, 0x34, 0x12}}},
		{Command{Kind: SetDirection, Value: 1}, Frame{Opcode: 0x0E, Request: []byte{0x0E, 0x01}}},
		{Command{Kind: GetDirection}, Frame{Opcode: 0x0D, Request: []byte{0x0D}, ResponseLen: 1}},
		{Command{Kind: Abort}, Frame{Opcode: 0x08, Request: []byte{0x08}}},
		{Command{Kind: GetSettings}, Frame{Opcode: 0x10, Request: []byte{0x10}, ResponseLen: 12}},
		{Command{Kind: SetSpeed, Value: 3}, Frame{Opcode: 0x14, Request: []byte{0x14, 0x03}}},
	} {
		t.Run(test.cmd.String(), func(t *testing.T) {
			got, err := d.Encode(test.cmd)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Errorf("unexpected frame: (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSMBusWordRoundTrip(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		t.Run(order.String(), func(t *testing.T) {
			d := NewSMBus(order, nil)
			set, err := d.Encode(Command{Kind: SetMax, Value: 12345})
			if err != nil {
				t.Fatal(err)
			}
			// the device echoes the stored word back on GetMax
			got, err := d.Decode(Command{Kind: GetMax}, set.Request[1:])
			if err != nil {
				t.Fatal(err)
			}
			if got != 12345 {
				t.Errorf("GetMax = %d, want 12345", got)
			}
		})
	}
}

func TestSMBusByteOrderIsExplicit(t *testing.T) {
	resp := []byte{0x01, 0x02}
	le, _ := NewSMBus(binary.LittleEndian, nil).Decode(Command{Kind: GetPosition}, resp)
	be, _ := NewSMBus(binary.BigEndian, nil).Decode(Command{Kind: GetPosition}, resp)
	if le != 0x0201 || be != 0x0102 {
		t.Errorf("got le=%#x be=%#x", le, be)
	}
}

func TestSMBusDecodeLength(t *testing.T) {
	d := NewSMBus(nil, nil)
	_, err := d.Decode(Command{Kind: GetMax}, []byte{0x01})
	var lerr *LengthError
	if !errors.As(err, &lerr) {
		t.Fatalf("got %v, want LengthError", err)
	}
	if lerr.Want != 2 || lerr.Got != 1 {
		t.Errorf("unexpected error %+v", lerr)
	}
}

func TestLayouts(t *testing.T) {
	want := Settings{
		CurrentPosition: 1000,
		TargetPosition:  2000,
		MaxTravel:       60000,
		MicronsPerStep:  150,
		Backlash:        25,
		Direction:       Reverse,
		ADC1Mean:        512,
		ADC2Mean:        1023,
		DataCount:       7,
	}
	for _, test := range []struct {
		layout *Layout
		size   int
		drop   func(*Settings)
	}{
		{LayoutV1, 10, func(s *Settings) { s.Backlash, s.ADC1Mean, s.ADC2Mean = 0, 0, 0 }},
		{LayoutV2, 12, func(s *Settings) { s.ADC1Mean, s.ADC2Mean = 0, 0 }},
		{LayoutV3, 16, func(s *Settings) {}},
	} {
		t.Run(test.layout.Name, func(t *testing.T) {
			if got := test.layout.Size(); got != test.size {
				t.Fatalf("Size = %d, want %d", got, test.size)
			}
			b := test.layout.Encode(binary.LittleEndian, want)
			got, err := test.layout.Decode(binary.LittleEndian, b)
			if err != nil {
				t.Fatal(err)
			}
			exp := want
			test.drop(&exp)
			exp.Layout = test.layout.Name
			if diff := cmp.Diff(exp, got); diff != "" {
				t.Errorf("unexpected settings: (-want +got):\n%s", diff)
			}

			l, err := LayoutForSize(test.size)
			if err != nil || l != test.layout {
				t.Errorf("LayoutForSize(%d) = %v, %v", test.size, l, err)
			}
		})
	}
}

func TestSettingsShortBlock(t *testing.T) {
	d := NewSMBus(nil, LayoutV1)
	got, err := d.DecodeSettings(make([]byte, 9))
	var lerr *LengthError
	if !errors.As(err, &lerr) {
		t.Fatalf("got %v, want LengthError", err)
	}
	if diff := cmp.Diff(Settings{}, got); diff != "" {
		t.Errorf("short block produced a partial snapshot:\n%s", diff)
	}
}

func TestLayoutForUnknownSize(t *testing.T) {
	if _, err := LayoutForSize(11); !errors.Is(err, ErrUnknownSize) {
		t.Errorf("got %v, want ErrUnknownSize", err)
	}
}

func TestHIDReport(t *testing.T) {
	d := NewHIDReport()

	if _, err := d.Encode(Command{Kind: SetMax, Value: 100}); !errors.Is(err, ErrNoPrefs) {
		t.Errorf("prefs write before status: got %v, want ErrNoPrefs", err)
	}

	status := Settings{
		Moving:          true,
		CurrentPosition: 0x1234,
		MaxTravel:       22500,
		Speed:           2,
		Direction:       Reverse,
		Backlash:        40,
		MicronsPerStep:  250,
	}
	got, err := d.DecodeSettings(EncodeStatusReport(status))
	if err != nil {
		t.Fatal(err)
	}
	want := status
	want.TargetPosition = status.CurrentPosition
	want.Layout = "grbsystems-hid"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected status: (-want +got):\n%s", diff)
	}

	move, err := d.Encode(Command{Kind: SetMove, Value: 0xABCD})
	if err != nil {
		t.Fatal(err)
	}
	if len(move.Request) != ReportSize {
		t.Fatalf("report is %d bytes", len(move.Request))
	}
	if diff := cmp.Diff([]byte{0x00, 0x11, 0x00, 0xAB, 0xCD}, move.Request[:5]); diff != "" {
		t.Errorf("move report: %s", diff)
	}

	prefs, err := d.Encode(Command{Kind: SetBacklash, Value: 0x0102})
	if err != nil {
		t.Fatal(err)
	}
	wantPrefs := []byte{0x00, 0x2A, 0x00, 0x57, 0xE4, 5, 1, 0x01, 0x02, 0x00, 0xFA}
	if diff := cmp.Diff(wantPrefs, prefs.Request[:11]); diff != "" {
		t.Errorf("prefs report: (-want +got):\n%s", diff)
	}

	pos, err := d.Decode(Command{Kind: GetPosition}, EncodeStatusReport(status))
	if err != nil || pos != 0x1234 {
		t.Errorf("GetPosition = %#x, %v", pos, err)
	}
	if _, err := d.Encode(Command{Kind: GetMove}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("GetMove: got %v, want ErrUnsupported", err)
	}
}

func TestSpeedPulse(t *testing.T) {
	for speed := uint8(1); speed <= 5; speed++ {
		if got := PulseToSpeed(SpeedToPulse(speed)); got != speed {
			t.Errorf("speed %d round trips to %d", speed, got)
		}
	}
	if SpeedToPulse(9) != 0 {
		t.Errorf("speed above 5 not clamped")
	}
}

func TestHIDPrefsAccumulate(t *testing.T) {
	d := NewHIDReport()
	if _, err := d.DecodeSettings(EncodeStatusReport(Settings{MaxTravel: 1000, Speed: 3, MicronsPerStep: 50})); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Encode(Command{Kind: SetMax, Value: 2000}); err != nil {
		t.Fatal(err)
	}
	f, err := d.Encode(Command{Kind: SetBacklash, Value: 5})
	if err != nil {
		t.Fatal(err)
	}
	// max 2000, pulse for speed 3, direction normal, backlash 5, microns 50
	want := []byte{0x00, 0x2A, 0x00, 0x07, 0xD0, 3, 0, 0x00, 0x05, 0x00, 0x32}
	if diff := cmp.Diff(want, f.Request[:11]); diff != "" {
		t.Errorf("second prefs write lost the first: (-want +got):\n%s", diff)
	}

	// a fresh status report wins over the pending block
	if _, err := d.DecodeSettings(EncodeStatusReport(Settings{MaxTravel: 1500})); err != nil {
		t.Fatal(err)
	}
	f, err = d.Encode(Command{Kind: SetMicron, Value: 10})
	if err != nil {
		t.Fatal(err)
	}
	if got := binary.BigEndian.Uint16(f.Request[3:]); got != 1500 {
		t.Errorf("max after status = %d, want 1500", got)
	}
}
