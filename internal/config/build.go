package config

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/grbsystems/indi-grbsystems/bus"
	"github.com/grbsystems/indi-grbsystems/codec"
	"github.com/grbsystems/indi-grbsystems/driver"
	"github.com/grbsystems/indi-grbsystems/simulator"
	"github.com/sirupsen/logrus"
)

// Order returns the configured SMBus word order.
func (c CodecConfig) Order() binary.ByteOrder {
	if c.ByteOrder == "big" {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// BuildTransport builds the configured bus. For the sim kind the simulator is
// returned as well so the caller can run it.
func (c *Config) BuildTransport() (bus.Transport, *simulator.Simulator, error) {
	t := c.Transport
	switch t.Kind {
	case "i2c":
		return &bus.I2C{Bus: t.I2C.Bus, Addr: t.I2C.Addr}, nil, nil
	case "hid":
		return &bus.HID{VendorID: t.HID.VendorID, ProductID: t.HID.ProductID}, nil, nil
	case "serial":
		return &bus.Serial{
			Port:    t.Serial.Port,
			Baud:    t.Serial.Baud,
			Addr:    t.Serial.Addr,
			Timeout: time.Duration(t.Serial.TimeoutMs) * time.Millisecond,
		}, nil, nil
	case "remote":
		return &bus.Remote{URL: t.Remote.URL, Password: t.Remote.Password}, nil, nil
	case "sim":
		layout := codec.LayoutV2
		if l, err := codec.LayoutByName(c.Codec.Layout); err == nil {
			layout = l
		}
		sim := simulator.New(layout, c.Codec.Order())
		return sim, sim, nil
	}
	return nil, nil, fmt.Errorf("unknown transport kind %q", t.Kind)
}

// BuildDialect builds the configured codec.
func (c CodecConfig) BuildDialect() codec.Dialect {
	if c.Dialect == "hid" {
		return codec.NewHIDReport()
	}
	return codec.NewSMBus(c.Order(), nil)
}

// BuildDriver wires the transport and codec into a driver.
func (c *Config) BuildDriver(log *logrus.Entry) (*driver.Driver, *simulator.Simulator, error) {
	t, sim, err := c.BuildTransport()
	if err != nil {
		return nil, nil, err
	}
	return driver.New(t, c.Codec.BuildDialect(), log), sim, nil
}
