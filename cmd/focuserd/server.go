package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/grbsystems/indi-grbsystems/codec"
	"github.com/grbsystems/indi-grbsystems/focuser"
	"github.com/sirupsen/logrus"
)

type Server struct {
	c   *focuser.Controller
	log *logrus.Entry

	statusMu   sync.RWMutex
	statusCond *sync.Cond
	status     focuser.Status
	// seq counts published statuses so waiters can tell a new one from a spurious wakeup.
	seq uint64
}

func NewServer() *Server {
	s := &Server{log: logrus.WithField("component", "server")}
	s.statusCond = sync.NewCond(s.statusMu.RLocker())
	return s
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(status)
	if err != nil {
		s.log.WithError(err).Error("marshal status")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write(data)
}

type Command struct {
	Command  string `json:"command"`
	Position int    `json:"position"`
	// Direction is "in" or "out" for move_relative, "normal" or "reverse" for direction.
	Direction string `json:"direction"`
	Ticks     int    `json:"ticks"`
	Value     int    `json:"value"`
}

// Execute runs one client command against the controller.
func (s *Server) Execute(cmd Command) error {
	switch cmd.Command {
	case "move":
		return s.c.MoveTo(cmd.Position)
	case "move_relative":
		dir := focuser.Outward
		if cmd.Direction == "in" {
			dir = focuser.Inward
		}
		return s.c.MoveRelative(dir, cmd.Ticks)
	case "abort":
		return s.c.Abort()
	case "sync":
		return s.c.UpdateCurrentPosition(cmd.Position)
	case "max_travel":
		return s.c.UpdateMaxTravel(cmd.Value)
	case "backlash":
		return s.c.UpdateBacklash(cmd.Value)
	case "direction":
		dir := codec.Normal
		if cmd.Direction == "reverse" || cmd.Value == 1 {
			dir = codec.Reverse
		}
		return s.c.UpdateDirection(dir)
	case "speed":
		return s.c.UpdateSpeed(cmd.Value)
	case "microns":
		return s.c.UpdateMicrons(cmd.Value)
	}
	return fmt.Errorf("unknown command %q", cmd.Command)
}

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("upgrade failed")
		return
	}
	defer conn.Close()

	// Read and process incoming messages
	go func() {
		defer func() {
			cancel()
			// wake the writer so it notices
			s.statusMu.Lock()
			s.statusCond.Broadcast()
			s.statusMu.Unlock()
		}()
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if err := s.Execute(msg); err != nil {
				s.log.WithError(err).WithField("command", msg.Command).Warn("command failed")
			}
		}
	}()

	send := func(status focuser.Status) error {
		data, err := json.Marshal(status)
		if err != nil {
			return err
		}
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	s.statusMu.RLock()
	status, seq := s.status, s.seq
	s.statusMu.RUnlock()
	if err := send(status); err != nil {
		return
	}

	for {
		s.statusMu.RLock()
		for s.seq == seq && ctx.Err() == nil {
			s.statusCond.Wait()
		}
		status, seq = s.status, s.seq
		s.statusMu.RUnlock()
		if ctx.Err() != nil {
			return
		}
		if err := send(status); err != nil {
			s.log.WithError(err).Debug("status socket closed")
			return
		}
	}
}

func (s *Server) statusCallback(status focuser.Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status = status
	s.seq++
	s.statusCond.Broadcast()
}
