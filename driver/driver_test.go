package driver

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/grbsystems/indi-grbsystems/codec"
	"github.com/grbsystems/indi-grbsystems/simulator"
)

func newDriver(layout *codec.Layout) (*Driver, *simulator.Simulator) {
	sim := simulator.New(layout, binary.LittleEndian)
	return New(sim, codec.NewSMBus(binary.LittleEndian, layout), nil), sim
}

func TestOneSessionPerOperation(t *testing.T) {
	d, sim := newDriver(nil)
	if err := d.SetMove(500); err != nil {
		t.Fatal(err)
	}
	if _, err := d.GetMove(); err != nil {
		t.Fatal(err)
	}
	want := []simulator.Event{
		{Kind: simulator.EventOpen, Session: 1},
		{Kind: simulator.EventTx, Session: 1, Opcode: 0x07},
		{Kind: simulator.EventClose, Session: 1},
		{Kind: simulator.EventOpen, Session: 2},
		{Kind: simulator.EventTx, Session: 2, Opcode: 0x06},
		{Kind: simulator.EventClose, Session: 2},
	}
	if diff := cmp.Diff(want, sim.Events()); diff != "" {
		t.Errorf("unexpected bus access: (-want +got):\n%s", diff)
	}
}

func TestTypedOperations(t *testing.T) {
	d, _ := newDriver(codec.LayoutV2)
	for _, step := range []struct {
		name string
		set  func() error
		get  func() (uint16, error)
		want uint16
	}{
		{"position", func() error { return d.SetPosition(42) }, d.GetPosition, 42},
		{"max", func() error { return d.SetMax(12345) }, d.GetMax, 12345},
		{"backlash", func() error { return d.SetBacklash(30) }, d.GetBacklash, 30},
		{"micron", func() error { return d.SetMicron(250) }, d.GetMicron, 250},
		{"speed", func() error { return d.SetSpeed(4) }, func() (uint16, error) {
			v, err := d.GetSpeed()
			return uint16(v), err
		}, 4},
		{"direction", func() error { return d.SetDirection(codec.Reverse) }, func() (uint16, error) {
			v, err := d.GetDirection()
			return uint16(v), err
		}, 1},
	} {
		t.Run(step.name, func(t *testing.T) {
			if err := step.set(); err != nil {
				t.Fatalf("set: %v", err)
			}
			got, err := step.get()
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got != step.want {
				t.Errorf("got %d, want %d", got, step.want)
			}
		})
	}

	s, err := d.GetSettings()
	if err != nil {
		t.Fatal(err)
	}
	if s.CurrentPosition != 42 || s.MaxTravel != 12345 || s.Backlash != 30 || s.Direction != codec.Reverse {
		t.Errorf("unexpected settings %+v", s)
	}
}

func TestFaultKinds(t *testing.T) {
	d, sim := newDriver(nil)

	sim.FailOpen(1)
	_, err := d.GetPosition()
	var f *Fault
	if !errors.As(err, &f) || !errors.Is(err, ErrBusOpen) {
		t.Fatalf("got %v, want bus open fault", err)
	}
	if f.Opcode != codec.GetPosition.Opcode() {
		t.Errorf("fault opcode = %#x", f.Opcode)
	}
	if !errors.Is(err, simulator.ErrInjected) {
		t.Errorf("fault does not wrap the transport error")
	}

	sim.FailTx(1)
	if err := d.SetMax(10); !errors.Is(err, ErrBusTransact) || errors.Is(err, ErrBusOpen) {
		t.Errorf("got %v, want bus transaction fault", err)
	}
	if len(sim.Events()) == 0 || sim.Events()[len(sim.Events())-1].Kind != simulator.EventClose {
		t.Errorf("session left open after a failed transaction")
	}

	sim.Truncate(1)
	if _, err := d.GetMax(); !errors.Is(err, ErrCodec) {
		t.Errorf("got %v, want codec fault", err)
	}
}

func TestShortSettingsBlock(t *testing.T) {
	d, sim := newDriver(codec.LayoutV1)
	sim.SetSettings(codec.Settings{CurrentPosition: 100, MaxTravel: 1000})
	sim.Truncate(9)
	s, err := d.GetSettings()
	var f *Fault
	if !errors.As(err, &f) || f.Kind != Codec {
		t.Fatalf("got %v, want codec fault", err)
	}
	if f.N != 9 {
		t.Errorf("fault byte count = %d, want 9", f.N)
	}
	var lerr *codec.LengthError
	if !errors.As(err, &lerr) || lerr.Want != 10 {
		t.Errorf("got %v, want LengthError for 10 bytes", err)
	}
	if diff := cmp.Diff(codec.Settings{}, s); diff != "" {
		t.Errorf("partial snapshot returned:\n%s", diff)
	}
}

func TestNegotiate(t *testing.T) {
	for _, test := range []struct {
		name   string
		device *codec.Layout
		noSize bool
		config string
		want   *codec.Layout
	}{
		{"auto v2", codec.LayoutV2, false, LayoutAuto, codec.LayoutV2},
		{"auto v3", codec.LayoutV3, false, LayoutAuto, codec.LayoutV3},
		{"old firmware", codec.LayoutV1, true, LayoutAuto, codec.LayoutV1},
		{"fixed", codec.LayoutV3, true, "fusion-v3", codec.LayoutV3},
	} {
		t.Run(test.name, func(t *testing.T) {
			sim := simulator.New(test.device, nil)
			if test.noSize {
				sim.DisableSizeQuery()
			}
			dialect := codec.NewSMBus(nil, nil)
			d := New(sim, dialect, nil)
			got, err := d.Negotiate(test.config)
			if err != nil {
				t.Fatal(err)
			}
			if got != test.want || dialect.Layout() != test.want {
				t.Errorf("negotiated %v, want %v", got.Name, test.want.Name)
			}
			if _, err := d.GetSettings(); err != nil {
				t.Errorf("GetSettings after negotiation: %v", err)
			}
		})
	}
}

func TestNegotiateUnknownLayout(t *testing.T) {
	d, _ := newDriver(nil)
	if _, err := d.Negotiate("fusion-v9"); err == nil {
		t.Error("unknown layout name accepted")
	}
}

func TestNegotiateFaultKeepsLayout(t *testing.T) {
	sim := simulator.New(codec.LayoutV2, nil)
	sim.SetSettings(codec.Settings{CurrentPosition: 700, MaxTravel: 5000, Backlash: 0x0301})
	dialect := codec.NewSMBus(nil, codec.LayoutV3)
	d := New(sim, dialect, nil)

	sim.FailTx(1)
	l, err := d.Negotiate(LayoutAuto)
	if !errors.Is(err, ErrBusTransact) {
		t.Fatalf("got %v, %v; want bus transaction fault", l, err)
	}
	if l != nil || dialect.Layout() != codec.LayoutV3 {
		t.Errorf("failed query changed the layout to %v", dialect.Layout().Name)
	}

	if _, err := d.Negotiate(LayoutAuto); err != nil {
		t.Fatal(err)
	}
	s, err := d.GetSettings()
	if err != nil {
		t.Fatal(err)
	}
	if s.Backlash != 0x0301 || s.Direction != codec.Normal || s.Layout != codec.LayoutV2.Name {
		t.Errorf("unexpected settings %+v", s)
	}
}

func TestNegotiateUnknownSize(t *testing.T) {
	d, sim := newDriver(nil)
	sim.Truncate(0)
	_, err := d.Negotiate(LayoutAuto)
	if !errors.Is(err, ErrCodec) {
		t.Errorf("empty size reply: got %v, want codec fault", err)
	}
}

// oddDialect frames every command under its own opcode and refuses to decode.
type oddDialect struct{ codec.Dialect }

func (oddDialect) Encode(cmd codec.Command) (codec.Frame, error) {
	return codec.Frame{Opcode: 0x99, Request: []byte{codec.GetPosition.Opcode()}, ResponseLen: 2}, nil
}

func (oddDialect) Decode(codec.Command, []byte) (uint16, error) {
	return 0, codec.ErrUnsupported
}

func (oddDialect) Name() string { return "odd" }

func TestDecodeFaultOpcode(t *testing.T) {
	sim := simulator.New(nil, nil)
	d := New(sim, oddDialect{}, nil)
	_, err := d.GetPosition()
	var f *Fault
	if !errors.As(err, &f) || f.Kind != Codec {
		t.Fatalf("got %v, want codec fault", err)
	}
	if f.Opcode != 0x99 {
		t.Errorf("fault opcode = %#x, want the dialect's 0x99", f.Opcode)
	}
}
