package bus

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tarm/serial"
)

// Serial reaches an I2C device through a USB-serial bridge MCU.
//
// Each transaction is one line out, "T<addr> <hex request> <n>", and one line
// back holding the hex encoded response. A line starting with '!' is an error
// reported by the bridge.
type Serial struct {
	Port string
	// Baud defaults to 115200.
	Baud    int
	Addr    uint16
	Timeout time.Duration
}

func (t *Serial) String() string {
	return fmt.Sprintf("serial:%s@%#02x", t.Port, t.Addr)
}

func (t *Serial) Open() (Conn, error) {
	baud := t.Baud
	if baud == 0 {
		baud = 115200
	}
	timeout := t.Timeout
	if timeout == 0 {
		timeout = 500 * time.Millisecond
	}
	p, err := serial.OpenPort(&serial.Config{Name: t.Port, Baud: baud, ReadTimeout: timeout})
	if err != nil {
		return nil, err
	}
	return &serialConn{p: p, r: bufio.NewReader(p), addr: t.Addr}, nil
}

type serialConn struct {
	p    *serial.Port
	r    *bufio.Reader
	addr uint16
}

func (c *serialConn) Tx(w []byte, n int) ([]byte, error) {
	if c.p == nil {
		return nil, ErrClosed
	}
	line := fmt.Sprintf("T%02x %s %d\n", c.addr, hex.EncodeToString(w), n)
	if _, err := c.p.Write([]byte(line)); err != nil {
		return nil, err
	}
	resp, err := c.r.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("reading bridge reply: %w", err)
	}
	resp = strings.TrimSpace(resp)
	if strings.HasPrefix(resp, "!") {
		return nil, errors.New("bridge: " + strings.TrimSpace(resp[1:]))
	}
	return hex.DecodeString(resp)
}

func (c *serialConn) Close() error {
	if c.p == nil {
		return nil
	}
	err := c.p.Close()
	c.p = nil
	return err
}
