package codec

import (
	"errors"
	"fmt"
)

// Kind identifies one logical focuser command.
type Kind int

const (
	GetPosition Kind = iota
	SetPosition
	GetMove
	SetMove
	GetMax
	SetMax
	GetBacklash
	SetBacklash
	GetMicron
	SetMicron
	GetDirection
	SetDirection
	GetSpeed
	SetSpeed
	Abort
	GetSettings
	GetSettingsSize
)

// Payload widths.
const (
	WidthNone  = 0
	WidthByte  = 1
	WidthWord  = 2
	WidthBlock = -1
)

type kindInfo struct {
	name   string
	opcode byte
	width  int
	write  bool
}

// Opcodes understood by the fusion firmware over SMBus.
var kinds = map[Kind]kindInfo{
	GetPosition:     {"get_position", 0x04, WidthWord, false},
	SetPosition:     {"set_position", 0x05, WidthWord, true},
	GetMove:         {"get_move", 0x06, WidthWord, false},
	SetMove:         {"set_move", 0x07, WidthWord, true},
	Abort:           {"abort", 0x08, WidthNone, true},
	GetMax:          {"get_max", 0x09, WidthWord, false},
	SetMax:          {"set_max", 0x0A, WidthWord, true},
	GetMicron:       {"get_micron", 0x0B, WidthWord, false},
	SetMicron:       {"set_micron", 0x0C, WidthWord, true},
	GetDirection:    {"get_direction", 0x0D, WidthByte, false},
	SetDirection:    {"set_direction", 0x0E, WidthByte, true},
	GetSettingsSize: {"get_settings_size", 0x0F, WidthByte, false},
	GetSettings:     {"get_settings", 0x10, WidthBlock, false},
	GetBacklash:     {"get_backlash", 0x11, WidthWord, false},
	SetBacklash:     {"set_backlash", 0x12, WidthWord, true},
	GetSpeed:        {"get_speed", 0x13, WidthByte, false},
	SetSpeed:        {"set_speed", 0x14, WidthByte, true},
}

func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Opcode returns the SMBus register opcode for k.
func (k Kind) Opcode() byte {
	return kinds[k].opcode
}

// Width returns the payload width of k.
func (k Kind) Width() int {
	return kinds[k].width
}

// IsWrite reports whether k changes hardware state.
func (k Kind) IsWrite() bool {
	return kinds[k].write
}

// KindForOpcode maps an SMBus opcode back to its command.
func KindForOpcode(op byte) (Kind, bool) {
	for k, info := range kinds {
		if info.opcode == op {
			return k, true
		}
	}
	return 0, false
}

// Direction is the sense of positive motion.
type Direction uint8

const (
	Normal  Direction = 0
	Reverse Direction = 1
)

func (d Direction) String() string {
	if d == Reverse {
		return "reverse"
	}
	return "normal"
}

// Command is one logical command with its optional payload.
type Command struct {
	Kind  Kind
	Value uint16
}

func (c Command) String() string {
	if c.Kind.IsWrite() && c.Kind.Width() != WidthNone {
		return fmt.Sprintf("%s(%d)", c.Kind, c.Value)
	}
	return c.Kind.String()
}

// Frame is an encoded request plus the number of response bytes expected.
type Frame struct {
	Opcode      byte
	Request     []byte
	ResponseLen int
}

var (
	ErrUnsupported = errors.New("command not supported by dialect")
	ErrNoPrefs     = errors.New("no preference block decoded yet")
	ErrUnknownSize = errors.New("no settings layout for block size")
)

// LengthError is returned when a response does not match the expected frame width.
type LengthError struct {
	Cmd  Kind
	Want int
	Got  int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("%s: frame length mismatch: want %d bytes, got %d", e.Cmd, e.Want, e.Got)
}

// Dialect turns commands into frames for one hardware family.
type Dialect interface {
	Name() string
	Encode(cmd Command) (Frame, error)
	// Decode returns the scalar value carried by a Get* response.
	Decode(cmd Command, resp []byte) (uint16, error)
	DecodeSettings(resp []byte) (Settings, error)
}
