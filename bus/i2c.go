package bus

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// DefaultI2CAddr is the fusion focuser's slave address.
const DefaultI2CAddr uint16 = 0x08

var hostInit struct {
	once sync.Once
	err  error
}

func initHost() error {
	hostInit.once.Do(func() {
		_, hostInit.err = host.Init()
	})
	return hostInit.err
}

// I2C talks to a device on a Linux i2c-dev bus.
type I2C struct {
	// Bus is the bus name or path, e.g. "/dev/i2c-1" or "1".
	Bus  string
	Addr uint16
}

func (t *I2C) String() string {
	return fmt.Sprintf("i2c:%s@%#02x", t.Bus, t.Addr)
}

func (t *I2C) Open() (Conn, error) {
	if err := initHost(); err != nil {
		return nil, fmt.Errorf("initializing host drivers: %w", err)
	}
	b, err := i2creg.Open(t.Bus)
	if err != nil {
		return nil, err
	}
	return &i2cConn{b: b, dev: &i2c.Dev{Bus: b, Addr: t.Addr}}, nil
}

type i2cConn struct {
	b   i2c.BusCloser
	dev *i2c.Dev
}

// Tx uses a combined write-then-read so no other master can slip in between.
func (c *i2cConn) Tx(w []byte, n int) ([]byte, error) {
	if c.dev == nil {
		return nil, ErrClosed
	}
	var r []byte
	if n > 0 {
		r = make([]byte, n)
	}
	if err := c.dev.Tx(w, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (c *i2cConn) Close() error {
	if c.dev == nil {
		return nil
	}
	c.dev = nil
	return c.b.Close()
}
