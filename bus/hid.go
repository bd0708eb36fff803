package bus

import (
	"errors"
	"fmt"

	"github.com/karalabe/hid"
)

// GRBSystems USB focuser identifiers.
const (
	DefaultHIDVendor  uint16 = 0x04d8
	DefaultHIDProduct uint16 = 0x003f
)

var ErrNoDevice = errors.New("bus: no matching HID device")

// HID talks to the first USB HID device matching VendorID and ProductID.
type HID struct {
	VendorID  uint16
	ProductID uint16
}

func (t *HID) String() string {
	return fmt.Sprintf("hid:%04x:%04x", t.VendorID, t.ProductID)
}

func (t *HID) Open() (Conn, error) {
	if !hid.Supported() {
		return nil, errors.New("bus: HID not supported on this platform")
	}
	infos := hid.Enumerate(t.VendorID, t.ProductID)
	if len(infos) == 0 {
		return nil, ErrNoDevice
	}
	dev, err := infos[0].Open()
	if err != nil {
		return nil, err
	}
	return &hidConn{dev: dev}, nil
}

type hidConn struct {
	dev *hid.Device
}

func (c *hidConn) Tx(w []byte, n int) ([]byte, error) {
	if c.dev == nil {
		return nil, ErrClosed
	}
	if len(w) > 0 {
		m, err := c.dev.Write(w)
		if err != nil {
			return nil, err
		}
		if m != len(w) {
			return nil, &ShortWriteError{Want: len(w), Got: m}
		}
	}
	if n == 0 {
		return nil, nil
	}
	r := make([]byte, n)
	m, err := c.dev.Read(r)
	if err != nil {
		return nil, err
	}
	return r[:m], nil
}

func (c *hidConn) Close() error {
	if c.dev == nil {
		return nil
	}
	err := c.dev.Close()
	c.dev = nil
	return err
}
