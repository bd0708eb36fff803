package codec

import (
	"encoding/binary"
	"sync"
)

// SMBus encodes commands as single register accesses for the fusion firmware.
//
// Word byte order is a parameter because firmware revisions disagree on it.
// The kernel's SMBus word transfer is low byte first and current firmware
// does not swap, so binary.LittleEndian is the default.
type SMBus struct {
	Order binary.ByteOrder

	mu     sync.Mutex
	layout *Layout
}

// NewSMBus returns a dialect using order and layout. A nil order means little endian
// and a nil layout means LayoutV1 until SetLayout is called.
func NewSMBus(order binary.ByteOrder, layout *Layout) *SMBus {
	if order == nil {
		order = binary.LittleEndian
	}
	if layout == nil {
		layout = LayoutV1
	}
	return &SMBus{Order: order, layout: layout}
}

func (d *SMBus) Name() string {
	return "smbus"
}

// Layout returns the settings layout in use.
func (d *SMBus) Layout() *Layout {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.layout
}

// SetLayout switches the settings layout, normally after negotiation.
func (d *SMBus) SetLayout(l *Layout) {
	d.mu.Lock()
	d.layout = l
	d.mu.Unlock()
}

func (d *SMBus) Encode(cmd Command) (Frame, error) {
	info, ok := kinds[cmd.Kind]
	if !ok {
		return Frame{}, ErrUnsupported
	}
	f := Frame{Opcode: info.opcode, Request: []byte{info.opcode}}
	if info.write {
		switch info.width {
		case WidthWord:
			var w [2]byte
			d.Order.PutUint16(w[:], cmd.Value)
			f.Request = append(f.Request, w[:]...)
		case WidthByte:
			f.Request = append(f.Request, byte(cmd.Value))
		}
		return f, nil
	}
	switch info.width {
	case WidthBlock:
		f.ResponseLen = d.Layout().Size()
	default:
		f.ResponseLen = info.width
	}
	return f, nil
}

func (d *SMBus) Decode(cmd Command, resp []byte) (uint16, error) {
	width := cmd.Kind.Width()
	if len(resp) != width {
		return 0, &LengthError{Cmd: cmd.Kind, Want: width, Got: len(resp)}
	}
	switch width {
	case WidthWord:
		return d.Order.Uint16(resp), nil
	case WidthByte:
		return uint16(resp[0]), nil
	}
	return 0, ErrUnsupported
}

func (d *SMBus) DecodeSettings(resp []byte) (Settings, error) {
	return d.Layout().Decode(d.Order, resp)
}
