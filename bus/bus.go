// Package bus holds the transports a focuser driver can talk over.
//
// A Transport hands out a fresh Conn per operation. Nothing is pooled: a
// focuser that resets between calls must not leave a stale handle behind.
package bus

import (
	"errors"
	"fmt"
)

// Transport opens sessions to a single fixed device.
type Transport interface {
	Open() (Conn, error)
	String() string
}

// Conn is one open session.
type Conn interface {
	// Tx writes w and then reads n bytes in a single bus transaction.
	// Either side may be empty. The returned slice holds what the device
	// actually sent, which can be shorter than n.
	Tx(w []byte, n int) ([]byte, error)
	Close() error
}

var ErrClosed = errors.New("bus: connection closed")

// ShortWriteError reports a write the device accepted only partially.
type ShortWriteError struct {
	Want, Got int
}

func (e *ShortWriteError) Error() string {
	return fmt.Sprintf("bus: short write: %d of %d bytes", e.Got, e.Want)
}
