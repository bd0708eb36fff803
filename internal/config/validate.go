package config

import (
	"fmt"

	"github.com/grbsystems/indi-grbsystems/codec"
)

// Validate checks the configuration without changing it.
func Validate(cfg *Config) error {
	t := cfg.Transport
	switch t.Kind {
	case "i2c":
		if t.I2C.Addr > 0x7F {
			return fmt.Errorf("transport.i2c.addr %#x is not a 7-bit address", t.I2C.Addr)
		}
	case "hid":
	case "serial":
		if t.Serial.Port == "" {
			return fmt.Errorf("transport.serial.port is required")
		}
		if t.Serial.Addr > 0x7F {
			return fmt.Errorf("transport.serial.addr %#x is not a 7-bit address", t.Serial.Addr)
		}
	case "remote":
		if t.Remote.URL == "" {
			return fmt.Errorf("transport.remote.url is required")
		}
	case "sim":
	default:
		return fmt.Errorf("unknown transport kind %q", t.Kind)
	}

	switch cfg.Codec.Dialect {
	case "", "smbus":
	case "hid":
		if t.Kind == "i2c" || t.Kind == "serial" {
			return fmt.Errorf("hid dialect cannot run over %s", t.Kind)
		}
	default:
		return fmt.Errorf("unknown codec dialect %q", cfg.Codec.Dialect)
	}
	switch cfg.Codec.ByteOrder {
	case "", "little", "big":
	default:
		return fmt.Errorf("codec.byte_order must be little or big, got %q", cfg.Codec.ByteOrder)
	}
	if l := cfg.Codec.Layout; l != "" && l != "auto" {
		if _, err := codec.LayoutByName(l); err != nil {
			return err
		}
	}

	if cfg.Poll.IntervalMs < 0 {
		return fmt.Errorf("poll.interval_ms must not be negative")
	}
	if cfg.Retry.Attempts < 0 || cfg.Retry.BackoffMs < 0 {
		return fmt.Errorf("retry settings must not be negative")
	}
	if m := cfg.Limits.MinPosition; m < 0 || m > 0xFFFF {
		return fmt.Errorf("limits.min_position %d outside 0..65535", m)
	}
	return nil
}
