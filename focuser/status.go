package focuser

import (
	"errors"
	"fmt"
	"time"

	"github.com/grbsystems/indi-grbsystems/codec"
)

// MotionState is derived from the last snapshot on every tick.
type MotionState int

const (
	Idle MotionState = iota
	Busy
	Alert
)

func (m MotionState) String() string {
	switch m {
	case Idle:
		return "idle"
	case Busy:
		return "busy"
	case Alert:
		return "alert"
	}
	return fmt.Sprintf("motion(%d)", int(m))
}

func (m MotionState) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *MotionState) UnmarshalText(text []byte) error {
	for _, s := range []MotionState{Idle, Busy, Alert} {
		if string(text) == s.String() {
			*m = s
			return nil
		}
	}
	return fmt.Errorf("unknown motion state %q", text)
}

// MoveDirection is the sense of a relative move.
type MoveDirection int

const (
	Inward MoveDirection = iota
	Outward
)

type StatusCallback func(status Status)

type Status struct {
	Connected bool
	Motion    MotionState
	Settings  codec.Settings

	// Target is the last commanded position. It is only meaningful when TargetKnown is set.
	Target      int
	TargetKnown bool

	// Position bounds for MoveTo.
	Min, Max int

	// Error is the fault behind an Alert, if any.
	Error string
	At    time.Time
}

var (
	ErrNotConnected = errors.New("focuser not connected")
	ErrOutOfRange   = errors.New("position out of range")
)

// RangeError rejects a position outside [Min, Max].
type RangeError struct {
	Position int
	Min, Max int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("position %d outside [%d, %d]", e.Position, e.Min, e.Max)
}

func (e *RangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

// RetryError is returned once every attempt of an operation has faulted.
// Err is the last fault, so errors.Is still sees its kind.
type RetryError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}
