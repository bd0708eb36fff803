// Package simulator emulates a fusion focuser on an SMBus transport.
package simulator

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/grbsystems/indi-grbsystems/bus"
	"github.com/grbsystems/indi-grbsystems/codec"
	"github.com/sirupsen/logrus"
)

const (
	// Steps moved per simulation step at speed 1. Higher speeds multiply it.
	stepsPerStep = 10
	// Discrete simulation step size
	stepSize = 25 * time.Millisecond
)

// ErrInjected is returned by operations failed on purpose.
var ErrInjected = errors.New("simulator: injected fault")

// EventKind is one kind of bus access.
type EventKind string

const (
	EventOpen  EventKind = "open"
	EventTx    EventKind = "tx"
	EventClose EventKind = "close"
)

// Event records a single bus access in the order the simulator saw it.
type Event struct {
	Kind    EventKind
	Session int
	Opcode  byte
}

// Simulator is an in-memory focuser. It implements bus.Transport.
type Simulator struct {
	order  binary.ByteOrder
	layout *codec.Layout
	log    *logrus.Entry

	mu       sync.Mutex
	state    codec.Settings
	speed    uint8
	open     int
	sessions int
	overlaps int
	events   []Event
	txCount  int

	failOpen int
	failTx   int
	truncate int
	noSize   bool
	txDelay  time.Duration
}

// New returns a simulator serving layout with the given byte order.
func New(layout *codec.Layout, order binary.ByteOrder) *Simulator {
	if layout == nil {
		layout = codec.LayoutV1
	}
	if order == nil {
		order = binary.LittleEndian
	}
	return &Simulator{
		order:  order,
		layout: layout,
		log:    logrus.WithField("device", "simulator"),
		speed:  1,
		state: codec.Settings{
			MaxTravel:      10000,
			MicronsPerStep: 100,
		},
		truncate: -1,
	}
}

func (s *Simulator) String() string {
	return "sim:" + s.layout.Name
}

// Open starts a session. Opening while another session is still open counts as an overlap.
func (s *Simulator) Open() (bus.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOpen > 0 {
		s.failOpen--
		return nil, fmt.Errorf("open: %w", ErrInjected)
	}
	if s.open > 0 {
		s.overlaps++
	}
	s.open++
	s.sessions++
	s.events = append(s.events, Event{Kind: EventOpen, Session: s.sessions})
	return &conn{s: s, session: s.sessions}, nil
}

type conn struct {
	s       *Simulator
	session int
	closed  bool
}

func (c *conn) Tx(w []byte, n int) ([]byte, error) {
	if c.closed {
		return nil, bus.ErrClosed
	}
	s := c.s
	s.mu.Lock()
	delay := s.txDelay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var op byte
	if len(w) > 0 {
		op = w[0]
	}
	s.events = append(s.events, Event{Kind: EventTx, Session: c.session, Opcode: op})
	s.txCount++
	if s.failTx > 0 {
		s.failTx--
		return nil, fmt.Errorf("tx: %w", ErrInjected)
	}
	resp, err := s.handle(w, n)
	if err != nil {
		return nil, err
	}
	// an I2C read always clocks in exactly n bytes
	if len(resp) != n {
		fit := make([]byte, n)
		copy(fit, resp)
		resp = fit
	}
	if s.truncate >= 0 && s.truncate < len(resp) {
		resp = resp[:s.truncate]
		s.truncate = -1
	}
	return resp, nil
}

func (c *conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	s := c.s
	s.mu.Lock()
	s.open--
	s.events = append(s.events, Event{Kind: EventClose, Session: c.session})
	s.mu.Unlock()
	return nil
}

// handle answers one register access. Called with s.mu held.
func (s *Simulator) handle(w []byte, n int) ([]byte, error) {
	if len(w) == 0 {
		return nil, errors.New("simulator: empty request")
	}
	kind, ok := codec.KindForOpcode(w[0])
	if !ok {
		return nil, fmt.Errorf("simulator: unknown opcode %#02x", w[0])
	}
	if kind == codec.GetSettingsSize && s.noSize {
		// unimplemented register, the bus reads idle high
		return []byte{0xFF}, nil
	}
	if kind.IsWrite() {
		var v uint16
		switch kind.Width() {
		case codec.WidthWord:
			if len(w) != 3 {
				return nil, fmt.Errorf("simulator: %s needs a word payload", kind)
			}
			v = s.order.Uint16(w[1:])
		case codec.WidthByte:
			if len(w) != 2 {
				return nil, fmt.Errorf("simulator: %s needs a byte payload", kind)
			}
			v = uint16(w[1])
		}
		s.write(kind, v)
		return nil, nil
	}

	switch kind {
	case codec.GetSettings:
		s.state.DataCount++
		return s.layout.Encode(s.order, s.state), nil
	case codec.GetSettingsSize:
		return []byte{byte(s.layout.Size())}, nil
	}
	v := s.read(kind)
	if kind.Width() == codec.WidthByte {
		return []byte{byte(v)}, nil
	}
	b := make([]byte, 2)
	s.order.PutUint16(b, v)
	return b, nil
}

func (s *Simulator) write(kind codec.Kind, v uint16) {
	s.log.WithFields(logrus.Fields{"cmd": kind, "value": v}).Debug("sim write")
	switch kind {
	case codec.SetPosition:
		s.state.CurrentPosition = v
		s.state.TargetPosition = v
	case codec.SetMove:
		s.state.TargetPosition = v
	case codec.Abort:
		s.state.TargetPosition = s.state.CurrentPosition
	case codec.SetMax:
		s.state.MaxTravel = v
	case codec.SetMicron:
		s.state.MicronsPerStep = v
	case codec.SetDirection:
		s.state.Direction = codec.Direction(v)
	case codec.SetBacklash:
		s.state.Backlash = v
	case codec.SetSpeed:
		s.speed = uint8(v)
	}
}

func (s *Simulator) read(kind codec.Kind) uint16 {
	switch kind {
	case codec.GetPosition:
		return s.state.CurrentPosition
	case codec.GetMove:
		return s.state.TargetPosition
	case codec.GetMax:
		return s.state.MaxTravel
	case codec.GetMicron:
		return s.state.MicronsPerStep
	case codec.GetDirection:
		return uint16(s.state.Direction)
	case codec.GetBacklash:
		return s.state.Backlash
	case codec.GetSpeed:
		return uint16(s.speed)
	}
	return 0
}

// Step moves the simulated motor one step toward its target.
func (s *Simulator) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	speed := uint16(s.speed)
	if speed == 0 {
		speed = 1
	}
	delta := uint16(stepsPerStep) * speed
	cur, tgt := s.state.CurrentPosition, s.state.TargetPosition
	switch {
	case tgt > cur:
		if tgt-cur < delta {
			delta = tgt - cur
		}
		s.state.CurrentPosition = cur + delta
	case tgt < cur:
		if cur-tgt < delta {
			delta = cur - tgt
		}
		s.state.CurrentPosition = cur - delta
	}
}

// Run steps the motor until ctx is canceled.
func (s *Simulator) Run(ctx context.Context) error {
	t := time.NewTicker(stepSize)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		s.Step()
	}
}

// Settings returns the current hardware state.
func (s *Simulator) Settings() codec.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetSettings overwrites the hardware state.
func (s *Simulator) SetSettings(st codec.Settings) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Converge moves the motor straight to its target.
func (s *Simulator) Converge() {
	s.mu.Lock()
	s.state.CurrentPosition = s.state.TargetPosition
	s.mu.Unlock()
}

// FailOpen makes the next n Open calls fail.
func (s *Simulator) FailOpen(n int) {
	s.mu.Lock()
	s.failOpen = n
	s.mu.Unlock()
}

// FailTx makes the next n transactions fail.
func (s *Simulator) FailTx(n int) {
	s.mu.Lock()
	s.failTx = n
	s.mu.Unlock()
}

// Truncate cuts the next response down to n bytes.
func (s *Simulator) Truncate(n int) {
	s.mu.Lock()
	s.truncate = n
	s.mu.Unlock()
}

// DisableSizeQuery makes the simulator behave like firmware without GetSettingsSize:
// the query reads back 0xFF.
func (s *Simulator) DisableSizeQuery() {
	s.mu.Lock()
	s.noSize = true
	s.mu.Unlock()
}

// SetTxDelay holds every transaction for d, outside the simulator lock.
func (s *Simulator) SetTxDelay(d time.Duration) {
	s.mu.Lock()
	s.txDelay = d
	s.mu.Unlock()
}

// Events returns a copy of the access log.
func (s *Simulator) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// ResetEvents clears the access log and counters.
func (s *Simulator) ResetEvents() {
	s.mu.Lock()
	s.events = nil
	s.txCount = 0
	s.overlaps = 0
	s.mu.Unlock()
}

// Transactions returns the number of transactions seen since the last reset.
func (s *Simulator) Transactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txCount
}

// Overlaps returns how many sessions were opened while another was open.
func (s *Simulator) Overlaps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlaps
}
