package codec

import (
	"encoding/binary"
	"sync"
)

// ReportSize is the fixed HID report length in both directions.
const ReportSize = 64

// GRBSystems HID report opcodes.
const (
	hidMoveAbs     = 0x11
	hidStop        = 0x13
	hidSetPoint    = 0x16
	hidUpdatePrefs = 0x2A

	// status payload starts after the report header
	hidDataOffset = 4
)

// speedPulse maps speed 1..5 to the firmware's step delay factor.
var speedPulse = [5]uint8{15, 5, 3, 1, 0}

// SpeedToPulse clamps speed to 1..5 and returns its pulse delay.
func SpeedToPulse(speed uint8) uint8 {
	if speed < 1 {
		speed = 1
	}
	if speed > 5 {
		speed = 5
	}
	return speedPulse[speed-1]
}

// PulseToSpeed returns the slowest speed whose delay is no longer than pulse.
func PulseToSpeed(pulse uint8) uint8 {
	for i, p := range speedPulse {
		if pulse >= p {
			return uint8(i + 1)
		}
	}
	return 5
}

// HIDReport is the report protocol spoken by the GRBSystems USB focuser.
// Words are big endian. Preference writes replace the whole preference block,
// so the dialect keeps the last block it decoded or sent.
type HIDReport struct {
	mu    sync.Mutex
	prefs *Settings
}

func NewHIDReport() *HIDReport {
	return &HIDReport{}
}

func (d *HIDReport) Name() string {
	return "hid"
}

func report(op byte) []byte {
	buf := make([]byte, ReportSize)
	buf[0] = 0x00 // header
	buf[1] = op
	buf[2] = 0x00 // channel 0
	return buf
}

func (d *HIDReport) Encode(cmd Command) (Frame, error) {
	switch cmd.Kind {
	case GetPosition, GetMax, GetBacklash, GetMicron, GetDirection, GetSpeed, GetSettings:
		// status reports stream from the device, there is nothing to send
		return Frame{ResponseLen: ReportSize}, nil
	case SetMove:
		buf := report(hidMoveAbs)
		binary.BigEndian.PutUint16(buf[3:], cmd.Value)
		return Frame{Opcode: hidMoveAbs, Request: buf}, nil
	case SetPosition:
		buf := report(hidSetPoint)
		binary.BigEndian.PutUint16(buf[3:], cmd.Value)
		return Frame{Opcode: hidSetPoint, Request: buf}, nil
	case Abort:
		return Frame{Opcode: hidStop, Request: report(hidStop)}, nil
	case SetMax, SetBacklash, SetMicron, SetDirection, SetSpeed:
		return d.encodePrefs(cmd)
	}
	return Frame{}, ErrUnsupported
}

func (d *HIDReport) encodePrefs(cmd Command) (Frame, error) {
	d.mu.Lock()
	if d.prefs == nil {
		d.mu.Unlock()
		return Frame{}, ErrNoPrefs
	}
	p := *d.prefs
	d.mu.Unlock()

	switch cmd.Kind {
	case SetMax:
		p.MaxTravel = cmd.Value
	case SetBacklash:
		p.Backlash = cmd.Value
	case SetMicron:
		p.MicronsPerStep = cmd.Value
	case SetDirection:
		p.Direction = Direction(cmd.Value)
	case SetSpeed:
		p.Speed = uint8(cmd.Value)
	}

	buf := report(hidUpdatePrefs)
	binary.BigEndian.PutUint16(buf[3:], p.MaxTravel)
	buf[5] = SpeedToPulse(p.Speed)
	buf[6] = byte(p.Direction)
	binary.BigEndian.PutUint16(buf[7:], p.Backlash)
	// the firmware reads this word as microns x 100
	binary.BigEndian.PutUint16(buf[9:], p.MicronsPerStep)

	// the next write builds on this block until a status report replaces it
	d.mu.Lock()
	d.prefs = &p
	d.mu.Unlock()
	return Frame{Opcode: hidUpdatePrefs, Request: buf}, nil
}

func (d *HIDReport) Decode(cmd Command, resp []byte) (uint16, error) {
	s, err := d.DecodeSettings(resp)
	if err != nil {
		return 0, err
	}
	switch cmd.Kind {
	case GetPosition:
		return s.CurrentPosition, nil
	case GetMax:
		return s.MaxTravel, nil
	case GetBacklash:
		return s.Backlash, nil
	case GetMicron:
		return s.MicronsPerStep, nil
	case GetDirection:
		return uint16(s.Direction), nil
	case GetSpeed:
		return uint16(s.Speed), nil
	}
	return 0, ErrUnsupported
}

func (d *HIDReport) DecodeSettings(resp []byte) (Settings, error) {
	if len(resp) != ReportSize {
		return Settings{}, &LengthError{Cmd: GetSettings, Want: ReportSize, Got: len(resp)}
	}
	b := resp[hidDataOffset:]
	s := Settings{
		Moving:          b[0] != 0,
		CurrentPosition: binary.BigEndian.Uint16(b[1:]),
		MaxTravel:       binary.BigEndian.Uint16(b[3:]),
		Speed:           PulseToSpeed(b[5]),
		Direction:       Direction(b[6]),
		Backlash:        binary.BigEndian.Uint16(b[7:]),
		MicronsPerStep:  binary.BigEndian.Uint16(b[9:]),
		Layout:          "grbsystems-hid",
	}
	// the report has no target register
	s.TargetPosition = s.CurrentPosition

	d.mu.Lock()
	prefs := s
	d.prefs = &prefs
	d.mu.Unlock()
	return s, nil
}

// EncodeStatusReport builds the input report a device would send for s.
func EncodeStatusReport(s Settings) []byte {
	buf := make([]byte, ReportSize)
	b := buf[hidDataOffset:]
	if s.Moving {
		b[0] = 1
	}
	binary.BigEndian.PutUint16(b[1:], s.CurrentPosition)
	binary.BigEndian.PutUint16(b[3:], s.MaxTravel)
	b[5] = SpeedToPulse(s.Speed)
	b[6] = byte(s.Direction)
	binary.BigEndian.PutUint16(b[7:], s.Backlash)
	binary.BigEndian.PutUint16(b[9:], s.MicronsPerStep)
	return buf
}
