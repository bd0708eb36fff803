// Package driver turns focuser commands into bus transactions.
//
// Every operation opens its own session, performs exactly one transaction
// and closes the session again. The driver never retries.
package driver

import (
	"errors"
	"fmt"
	"time"

	"github.com/grbsystems/indi-grbsystems/bus"
	"github.com/grbsystems/indi-grbsystems/codec"
	"github.com/grbsystems/indi-grbsystems/internal/metrics"
	"github.com/sirupsen/logrus"
)

// LayoutAuto asks the device for its settings block size.
const LayoutAuto = "auto"

type Driver struct {
	bus     bus.Transport
	dialect codec.Dialect
	log     *logrus.Entry
}

func New(t bus.Transport, d codec.Dialect, log *logrus.Entry) *Driver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Driver{
		bus:     t,
		dialect: d,
		log:     log.WithFields(logrus.Fields{"bus": t.String(), "dialect": d.Name()}),
	}
}

func (d *Driver) String() string {
	return fmt.Sprintf("%s/%s", d.bus, d.dialect.Name())
}

// transact runs one open/tx/close cycle for cmd.
func (d *Driver) transact(cmd codec.Command) (frame codec.Frame, resp []byte, err error) {
	start := time.Now()
	defer func() {
		result := "ok"
		var f *Fault
		if errors.As(err, &f) {
			result = f.Kind.String()
		}
		metrics.Transactions.WithLabelValues(cmd.Kind.String(), result).Inc()
		metrics.TransactionDuration.Observe(time.Since(start).Seconds())
	}()

	frame, err = d.dialect.Encode(cmd)
	if err != nil {
		return frame, nil, &Fault{Kind: Codec, Cmd: cmd, N: -1, Err: err}
	}
	conn, err := d.bus.Open()
	if err != nil {
		return frame, nil, &Fault{Kind: BusOpen, Cmd: cmd, Opcode: frame.Opcode, N: -1, Err: err}
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			d.log.WithError(cerr).Warn("close failed")
		}
	}()
	resp, err = conn.Tx(frame.Request, frame.ResponseLen)
	if err != nil {
		return frame, nil, &Fault{Kind: BusTransact, Cmd: cmd, Opcode: frame.Opcode, N: len(resp), Err: err}
	}
	d.log.WithFields(logrus.Fields{
		"cmd":    cmd,
		"opcode": fmt.Sprintf("%#02x", frame.Opcode),
		"n":      len(resp),
	}).Debug("tx")
	if len(resp) != frame.ResponseLen {
		return frame, nil, &Fault{Kind: Codec, Cmd: cmd, Opcode: frame.Opcode, N: len(resp),
			Err: &codec.LengthError{Cmd: cmd.Kind, Want: frame.ResponseLen, Got: len(resp)}}
	}
	return frame, resp, nil
}

func (d *Driver) read(k codec.Kind) (uint16, error) {
	cmd := codec.Command{Kind: k}
	frame, resp, err := d.transact(cmd)
	if err != nil {
		return 0, err
	}
	v, err := d.dialect.Decode(cmd, resp)
	if err != nil {
		return 0, &Fault{Kind: Codec, Cmd: cmd, Opcode: frame.Opcode, N: len(resp), Err: err}
	}
	return v, nil
}

func (d *Driver) write(k codec.Kind, v uint16) error {
	_, _, err := d.transact(codec.Command{Kind: k, Value: v})
	return err
}

func (d *Driver) GetPosition() (uint16, error) { return d.read(codec.GetPosition) }
func (d *Driver) GetMove() (uint16, error)     { return d.read(codec.GetMove) }
func (d *Driver) GetMax() (uint16, error)      { return d.read(codec.GetMax) }
func (d *Driver) GetBacklash() (uint16, error) { return d.read(codec.GetBacklash) }
func (d *Driver) GetMicron() (uint16, error)   { return d.read(codec.GetMicron) }

func (d *Driver) GetDirection() (codec.Direction, error) {
	v, err := d.read(codec.GetDirection)
	return codec.Direction(v), err
}

func (d *Driver) GetSpeed() (uint8, error) {
	v, err := d.read(codec.GetSpeed)
	return uint8(v), err
}

func (d *Driver) SetPosition(v uint16) error { return d.write(codec.SetPosition, v) }
func (d *Driver) SetMove(v uint16) error     { return d.write(codec.SetMove, v) }
func (d *Driver) SetMax(v uint16) error      { return d.write(codec.SetMax, v) }
func (d *Driver) SetBacklash(v uint16) error { return d.write(codec.SetBacklash, v) }
func (d *Driver) SetMicron(v uint16) error   { return d.write(codec.SetMicron, v) }

func (d *Driver) SetDirection(dir codec.Direction) error {
	return d.write(codec.SetDirection, uint16(dir))
}

// SetSpeed sends speed 1..5.
func (d *Driver) SetSpeed(speed uint8) error {
	return d.write(codec.SetSpeed, uint16(speed))
}

// Abort stops the motor where it is.
func (d *Driver) Abort() error {
	return d.write(codec.Abort, 0)
}

// GetSettings reads the whole settings block in one write-then-read transaction.
// On any fault the returned snapshot is empty.
func (d *Driver) GetSettings() (codec.Settings, error) {
	cmd := codec.Command{Kind: codec.GetSettings}
	frame, resp, err := d.transact(cmd)
	if err != nil {
		return codec.Settings{}, err
	}
	s, err := d.dialect.DecodeSettings(resp)
	if err != nil {
		return codec.Settings{}, &Fault{Kind: Codec, Cmd: cmd, Opcode: frame.Opcode, N: len(resp), Err: err}
	}
	return s, nil
}

// Negotiate picks the settings layout for SMBus devices. With LayoutAuto the
// device is asked for its block size. Firmware without the query reads back
// an idle register, 0x00 or 0xFF, and is assumed to send the original block.
// Any fault is returned and leaves the layout unchanged. Other dialects
// return a nil layout.
func (d *Driver) Negotiate(name string) (*codec.Layout, error) {
	sm, ok := d.dialect.(*codec.SMBus)
	if !ok {
		return nil, nil
	}
	if name != LayoutAuto && name != "" {
		l, err := codec.LayoutByName(name)
		if err != nil {
			return nil, err
		}
		sm.SetLayout(l)
		return l, nil
	}

	n, err := d.read(codec.GetSettingsSize)
	if err != nil {
		return nil, err
	}
	l := codec.LayoutV1
	if n != 0x00 && n != 0xFF {
		if l, err = codec.LayoutForSize(int(n)); err != nil {
			return nil, &Fault{Kind: Codec, Cmd: codec.Command{Kind: codec.GetSettingsSize}, Opcode: codec.GetSettingsSize.Opcode(), N: 1, Err: err}
		}
	}
	d.log.WithField("layout", l.Name).Info("negotiated settings layout")
	sm.SetLayout(l)
	return l, nil
}
