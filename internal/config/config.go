// Package config loads the focuser daemon configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/grbsystems/indi-grbsystems/bus"
	"github.com/grbsystems/indi-grbsystems/focuser"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Transport TransportConfig `yaml:"transport"`
	Codec     CodecConfig     `yaml:"codec"`
	Poll      PollConfig      `yaml:"poll"`
	Retry     RetryConfig     `yaml:"retry"`
	Limits    LimitsConfig    `yaml:"limits"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// ---- TRANSPORT ----

type TransportConfig struct {
	// Kind is one of i2c, hid, serial, remote or sim.
	Kind   string       `yaml:"kind"`
	I2C    I2CConfig    `yaml:"i2c"`
	HID    HIDConfig    `yaml:"hid"`
	Serial SerialConfig `yaml:"serial"`
	Remote RemoteConfig `yaml:"remote"`
}

type I2CConfig struct {
	Bus  string `yaml:"bus"`
	Addr uint16 `yaml:"addr"`
}

type HIDConfig struct {
	VendorID  uint16 `yaml:"vendor_id"`
	ProductID uint16 `yaml:"product_id"`
}

type SerialConfig struct {
	Port      string `yaml:"port"`
	Baud      int    `yaml:"baud"`
	Addr      uint16 `yaml:"addr"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type RemoteConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// ---- CODEC ----

type CodecConfig struct {
	// Dialect is smbus or hid. Empty picks the one matching the transport.
	Dialect string `yaml:"dialect"`
	// ByteOrder of SMBus words, little or big.
	ByteOrder string `yaml:"byte_order"`
	// Layout is auto or a settings layout name such as fusion-v2.
	Layout string `yaml:"layout"`
}

// ---- CONTROLLER ----

type PollConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

type RetryConfig struct {
	Attempts  int `yaml:"attempts"`
	BackoffMs int `yaml:"backoff_ms"`
}

type LimitsConfig struct {
	MinPosition int `yaml:"min_position"`
}

// ---- SERVER ----

type ServerConfig struct {
	Addr         string `yaml:"addr"`
	FocusctlAddr string `yaml:"focusctl_addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Transport: TransportConfig{
			Kind: "i2c",
			I2C:  I2CConfig{Bus: "/dev/i2c-1", Addr: bus.DefaultI2CAddr},
			HID:  HIDConfig{VendorID: bus.DefaultHIDVendor, ProductID: bus.DefaultHIDProduct},
			Serial: SerialConfig{
				Baud:      115200,
				Addr:      bus.DefaultI2CAddr,
				TimeoutMs: 500,
			},
		},
		Codec: CodecConfig{
			ByteOrder: "little",
			Layout:    "auto",
		},
		Poll:  PollConfig{IntervalMs: 1000},
		Retry: RetryConfig{Attempts: 3, BackoffMs: 50},
		Server: ServerConfig{
			Addr:         ":8080",
			FocusctlAddr: ":4533",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults, then validates and normalizes the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	Normalize(cfg)
	return cfg, nil
}

// Focuser returns the controller settings.
func (c *Config) Focuser() focuser.Config {
	return focuser.Config{
		PollInterval: time.Duration(c.Poll.IntervalMs) * time.Millisecond,
		Attempts:     c.Retry.Attempts,
		Backoff:      time.Duration(c.Retry.BackoffMs) * time.Millisecond,
		MinPosition:  c.Limits.MinPosition,
		Layout:       c.Codec.Layout,
	}
}

// Apply configures the standard logrus logger.
func (l LogConfig) Apply() {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if l.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
}
