package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/grbsystems/indi-grbsystems/focuser"
	"github.com/sirupsen/logrus"
)

// focusctl reply codes
const (
	rprtOK      = 0
	rprtInvalid = -22
	rprtIO      = -5
	rprtNoDev   = -19
)

// ListenFocusctl serves the focusctl line protocol on addr until ctx is canceled.
func (s *Server) ListenFocusctl(ctx context.Context, addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		s.log.Info("shutdown; closing focusctl socket")
		ln.Close()
	}()
	go func() {
		for ctx.Err() == nil {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() == nil {
					s.log.WithError(err).Warn("failed to accept")
				}
				continue
			}
			go s.handleFocusctl(conn)
		}
	}()
	return ln.Addr(), nil
}

func (s *Server) handleFocusctl(conn net.Conn) {
	defer conn.Close()
	log := s.log.WithField("remote", conn.RemoteAddr().String())
	log.Info("accepted connection")
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		s.focusctlLine(conn, scanner.Text(), log)
	}
	if err := scanner.Err(); err != nil {
		log.WithError(err).Warn("read failed")
	}
}

// focusctlLine answers one command. Commands are a single character with
// optional arguments, or "+\" followed by the long name for labelled output.
func (s *Server) focusctlLine(w io.Writer, line string, log *logrus.Entry) {
	cmd := line
	var args []string
	var extended bool
	if len(cmd) == 0 {
		return
	} else if len(cmd) > 2 && cmd[0:2] == `+\` {
		extended = true
		parts := strings.Fields(cmd)
		cmd = parts[0][2:]
		args = parts[1:]
		fmt.Fprintf(w, "%s:\n", cmd)
	} else {
		// Space after command is optional.
		args = strings.Fields(cmd[1:])
		cmd = string(cmd[0])
	}
	log.WithFields(logrus.Fields{"cmd": cmd, "args": args}).Debug("focusctl command")

	rprt := rprtInvalid
	switch cmd {
	case "_", "get_info":
		st := s.c.Status()
		if extended {
			fmt.Fprintf(w, "Info: GRBSystems focuser %s\n", st.Settings.Layout)
		} else {
			fmt.Fprintf(w, "GRBSystems focuser %s\n", st.Settings.Layout)
		}
		rprt = rprtOK
	case "p", "get_pos":
		if !s.c.Connected() {
			rprt = rprtNoDev
			break
		}
		st := s.c.Status()
		if extended {
			fmt.Fprintf(w, "Position: %d\nTarget: %d\nState: %s\n", st.Settings.CurrentPosition, st.Target, st.Motion)
		} else {
			fmt.Fprintf(w, "%d\n", st.Settings.CurrentPosition)
		}
		rprt = rprtOK
	case "P", "set_pos":
		extended = true // always print RPRT
		if len(args) != 1 {
			break
		}
		pos, err := strconv.Atoi(args[0])
		if err != nil {
			break
		}
		rprt = replyCode(s.c.MoveTo(pos))
	case "S", "stop":
		extended = true
		rprt = replyCode(s.c.Abort())
	}
	if extended || rprt != rprtOK {
		fmt.Fprintf(w, "RPRT %d\n", rprt)
	}
}

func replyCode(err error) int {
	switch {
	case err == nil:
		return rprtOK
	case errors.Is(err, focuser.ErrOutOfRange):
		return rprtInvalid
	case errors.Is(err, focuser.ErrNotConnected):
		return rprtNoDev
	}
	return rprtIO
}
