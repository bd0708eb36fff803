package driver

import (
	"errors"
	"fmt"

	"github.com/grbsystems/indi-grbsystems/codec"
)

// FaultKind says which stage of a transaction failed.
type FaultKind int

const (
	BusOpen FaultKind = iota
	BusTransact
	Codec
)

func (k FaultKind) String() string {
	switch k {
	case BusOpen:
		return "bus open"
	case BusTransact:
		return "bus transaction"
	case Codec:
		return "codec"
	}
	return fmt.Sprintf("fault(%d)", int(k))
}

// Sentinels matched by errors.Is against a *Fault of the same kind.
var (
	ErrBusOpen     = errors.New("bus open fault")
	ErrBusTransact = errors.New("bus transaction fault")
	ErrCodec       = errors.New("codec fault")
)

// Fault is any error raised by one driver operation.
type Fault struct {
	Kind   FaultKind
	Cmd    codec.Command
	Opcode byte
	// N is the raw byte count received, or -1 if nothing was read.
	N   int
	Err error
}

func (f *Fault) Error() string {
	if f.N >= 0 {
		return fmt.Sprintf("%s %s (opcode %#02x, %d bytes): %v", f.Cmd, f.Kind, f.Opcode, f.N, f.Err)
	}
	return fmt.Sprintf("%s %s (opcode %#02x): %v", f.Cmd, f.Kind, f.Opcode, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

func (f *Fault) Is(target error) bool {
	switch target {
	case ErrBusOpen:
		return f.Kind == BusOpen
	case ErrBusTransact:
		return f.Kind == BusTransact
	case ErrCodec:
		return f.Kind == Codec
	}
	return false
}
