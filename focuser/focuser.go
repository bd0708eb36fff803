// Package focuser owns the focuser's motion state, retry policy and poll loop.
package focuser

import (
	"context"
	"sync"
	"time"

	"github.com/grbsystems/indi-grbsystems/codec"
	"github.com/grbsystems/indi-grbsystems/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Device is the set of driver operations the controller uses.
// *driver.Driver implements it.
type Device interface {
	Negotiate(layout string) (*codec.Layout, error)
	GetSettings() (codec.Settings, error)
	SetMove(v uint16) error
	SetPosition(v uint16) error
	SetMax(v uint16) error
	SetBacklash(v uint16) error
	SetMicron(v uint16) error
	SetDirection(dir codec.Direction) error
	SetSpeed(speed uint8) error
	Abort() error
}

type Config struct {
	PollInterval time.Duration
	// Attempts per write operation.
	Attempts int
	// Backoff between attempts.
	Backoff     time.Duration
	MinPosition int
	// Layout is a settings layout name, or "auto" to ask the device.
	Layout string
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 1 * time.Second,
		Attempts:     3,
		Backoff:      50 * time.Millisecond,
		Layout:       "auto",
	}
}

const maxWord = 0xFFFF

type Controller struct {
	dev            Device
	cfg            Config
	statusCallback StatusCallback
	log            *logrus.Entry

	// busMu serializes every driver call.
	busMu sync.Mutex
	// lifeMu serializes Connect and Disconnect.
	lifeMu sync.Mutex
	// pubMu orders status callbacks.
	pubMu sync.Mutex

	mu          sync.Mutex
	connected   bool
	settings    codec.Settings
	motion      MotionState
	target      int
	targetKnown bool
	lastErr     error
	at          time.Time
	cancel      context.CancelFunc
	done        chan struct{}
}

// New returns a disconnected controller. Zero config fields take their defaults.
func New(dev Device, cfg Config, statusCallback StatusCallback) *Controller {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.Layout == "" {
		cfg.Layout = def.Layout
	}
	if statusCallback == nil {
		statusCallback = func(Status) {}
	}
	return &Controller{
		dev:            dev,
		cfg:            cfg,
		statusCallback: statusCallback,
		log:            logrus.WithField("device", "focuser"),
	}
}

// Connect negotiates the settings layout, reads the first snapshot and starts polling.
// On a fault the controller stays disconnected.
func (c *Controller) Connect(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.Connected() {
		return nil
	}

	err := c.retry("negotiate", func() error {
		_, err := c.dev.Negotiate(c.cfg.Layout)
		return err
	})
	if err != nil {
		c.log.WithError(err).Error("layout negotiation failed")
		return err
	}
	var s codec.Settings
	err = c.withBus(func() error {
		var err error
		s, err = c.dev.GetSettings()
		return err
	})
	if err != nil {
		c.log.WithError(err).Error("connect failed")
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.mu.Lock()
	c.connected = true
	c.targetKnown = false
	c.cancel = cancel
	c.done = done
	c.applyLocked(s)
	c.mu.Unlock()

	c.log.WithField("layout", s.Layout).Info("connected")
	c.publish()

	go func() {
		defer close(done)
		c.Run(ctx)
	}()
	return nil
}

// Disconnect stops the poll loop and waits for it to exit.
func (c *Controller) Disconnect() {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	cancel()
	<-done
	c.log.Info("disconnected")
	c.publish()
}

// Run ticks every poll interval until ctx is canceled. The wait starts only
// after the previous tick has finished.
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.PollInterval):
		}
		if _, err := c.OnTick(); err != nil && err != ErrNotConnected {
			c.log.WithError(err).Warn("poll failed")
		}
	}
}

// OnTick reads the settings block once, without retry, and publishes the result.
func (c *Controller) OnTick() (codec.Settings, error) {
	if !c.Connected() {
		return codec.Settings{}, ErrNotConnected
	}
	var s codec.Settings
	err := c.withBus(func() error {
		var err error
		s, err = c.dev.GetSettings()
		return err
	})

	c.mu.Lock()
	if err != nil {
		c.motion = Alert
		c.lastErr = err
		c.at = time.Now()
		c.mu.Unlock()
		metrics.Polls.WithLabelValues("fault").Inc()
		c.publish()
		return codec.Settings{}, err
	}
	c.applyLocked(s)
	c.mu.Unlock()
	metrics.Polls.WithLabelValues("ok").Inc()
	c.publish()
	return s, nil
}

// applyLocked replaces the snapshot and recomputes the motion state.
func (c *Controller) applyLocked(s codec.Settings) {
	c.settings = s
	if !c.targetKnown {
		c.target = int(s.CurrentPosition)
		c.targetKnown = true
	}
	if s.Moving || int(s.CurrentPosition) != c.target {
		c.motion = Busy
	} else {
		c.motion = Idle
	}
	c.lastErr = nil
	c.at = time.Now()
}

// MoveTo commands an absolute move. Positions outside [MinPosition, MaxTravel]
// are rejected before touching the bus.
func (c *Controller) MoveTo(position int) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	min, max := c.cfg.MinPosition, int(c.settings.MaxTravel)
	c.mu.Unlock()
	if position < min || position > max {
		return &RangeError{Position: position, Min: min, Max: max}
	}

	if err := c.retry("move", func() error { return c.dev.SetMove(uint16(position)) }); err != nil {
		c.fail(err)
		return err
	}
	c.mu.Lock()
	c.target = position
	c.targetKnown = true
	c.motion = Busy
	c.mu.Unlock()
	c.log.WithField("target", position).Info("moving")
	c.publish()
	return nil
}

// MoveRelative moves ticks steps inward or outward from the current position.
func (c *Controller) MoveRelative(dir MoveDirection, ticks int) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	pos := int(c.settings.CurrentPosition)
	c.mu.Unlock()
	if dir == Inward {
		return c.MoveTo(pos - ticks)
	}
	return c.MoveTo(pos + ticks)
}

// Abort forgets the recorded target and stops the motor.
func (c *Controller) Abort() error {
	c.mu.Lock()
	c.targetKnown = false
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	if err := c.retry("abort", c.dev.Abort); err != nil {
		c.fail(err)
		return err
	}
	c.mu.Lock()
	if c.settings.Moving {
		c.motion = Busy
	} else {
		c.motion = Idle
	}
	c.lastErr = nil
	c.at = time.Now()
	c.mu.Unlock()
	c.log.Info("aborted")
	c.publish()
	return nil
}

// UpdateMaxTravel sets the travel limit, clamped to a 16-bit word.
func (c *Controller) UpdateMaxTravel(v int) error {
	v = clamp(v, 0, maxWord)
	return c.update("max_travel", func() error { return c.dev.SetMax(uint16(v)) }, func(s *codec.Settings) {
		s.MaxTravel = uint16(v)
	})
}

// UpdateCurrentPosition redefines the current position without moving.
func (c *Controller) UpdateCurrentPosition(v int) error {
	v = clamp(v, 0, maxWord)
	return c.update("sync", func() error { return c.dev.SetPosition(uint16(v)) }, func(s *codec.Settings) {
		s.CurrentPosition = uint16(v)
		s.TargetPosition = uint16(v)
		c.target = v
		c.targetKnown = true
	})
}

func (c *Controller) UpdateBacklash(v int) error {
	v = clamp(v, 0, maxWord)
	return c.update("backlash", func() error { return c.dev.SetBacklash(uint16(v)) }, func(s *codec.Settings) {
		s.Backlash = uint16(v)
	})
}

func (c *Controller) UpdateDirection(dir codec.Direction) error {
	if dir != codec.Normal {
		dir = codec.Reverse
	}
	return c.update("direction", func() error { return c.dev.SetDirection(dir) }, func(s *codec.Settings) {
		s.Direction = dir
	})
}

// UpdateSpeed sets the motor speed, clamped to 1..5.
func (c *Controller) UpdateSpeed(v int) error {
	v = clamp(v, 1, 5)
	return c.update("speed", func() error { return c.dev.SetSpeed(uint8(v)) }, func(s *codec.Settings) {
		s.Speed = uint8(v)
	})
}

func (c *Controller) UpdateMicrons(v int) error {
	v = clamp(v, 0, maxWord)
	return c.update("microns", func() error { return c.dev.SetMicron(uint16(v)) }, func(s *codec.Settings) {
		s.MicronsPerStep = uint16(v)
	})
}

// update runs a pass-through write and mirrors it into the snapshot on success.
func (c *Controller) update(op string, write func() error, apply func(*codec.Settings)) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	if err := c.retry(op, write); err != nil {
		c.fail(err)
		return err
	}
	c.mu.Lock()
	apply(&c.settings)
	c.mu.Unlock()
	c.publish()
	return nil
}

// retry runs fn up to Attempts times with a fixed backoff. The bus lock is
// held for one attempt at a time so polling can interleave between attempts.
func (c *Controller) retry(op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		if attempt > 1 {
			metrics.Retries.WithLabelValues(op).Inc()
			time.Sleep(c.cfg.Backoff)
		}
		if err = c.withBus(fn); err == nil {
			return nil
		}
		c.log.WithError(err).WithFields(logrus.Fields{"op": op, "attempt": attempt}).Warn("attempt failed")
	}
	metrics.CommandFailures.WithLabelValues(op).Inc()
	return &RetryError{Op: op, Attempts: c.cfg.Attempts, Err: err}
}

func (c *Controller) withBus(fn func() error) error {
	c.busMu.Lock()
	defer c.busMu.Unlock()
	return fn()
}

func (c *Controller) fail(err error) {
	c.mu.Lock()
	c.motion = Alert
	c.lastErr = err
	c.at = time.Now()
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) statusLocked() Status {
	s := Status{
		Connected:   c.connected,
		Motion:      c.motion,
		Settings:    c.settings,
		Target:      c.target,
		TargetKnown: c.targetKnown,
		Min:         c.cfg.MinPosition,
		Max:         int(c.settings.MaxTravel),
		At:          c.at,
	}
	if c.lastErr != nil {
		s.Error = c.lastErr.Error()
	}
	return s
}

// publish hands the current status to the callback. Statuses are read and
// delivered under pubMu so callbacks never see them out of order. Never call
// it with mu or busMu held.
func (c *Controller) publish() {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	status := c.Status()
	metrics.Position.Set(float64(status.Settings.CurrentPosition))
	metrics.Target.Set(float64(status.Target))
	metrics.Motion.Set(float64(status.Motion))
	c.statusCallback(status)
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) Settings() codec.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

func (c *Controller) Motion() MotionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.motion
}

func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
