// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mon provides a tdaq node publishing the registers of a board.
package mon // import "github.com/go-lpc/cpld/mon"

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/cpld"
	"github.com/go-lpc/cpld/bitbang"
	"github.com/go-lpc/cpld/board"
)

var (
	listDevices = bitbang.List
	openSession = cpld.Open
)

// DefaultFreq is the default interval between two register dumps.
const DefaultFreq = time.Second

// Server monitors the registers of one board.
type Server struct {
	board  string
	serial string
	freq   time.Duration
	opts   []cpld.Option

	open func(name, serial string, opts ...cpld.Option) (*cpld.Session, error)

	mu      sync.Mutex
	sess    *cpld.Session
	running bool
	n       int
	data    chan []byte
}

// New returns a server dumping the registers of the provided board every
// freq, once started. The board may be changed by the /config command.
// A non-positive freq selects DefaultFreq.
func New(name, serial string, freq time.Duration, opts ...cpld.Option) *Server {
	if freq <= 0 {
		freq = DefaultFreq
	}
	return &Server{
		board:  name,
		serial: serial,
		freq:   freq,
		opts:   opts,
		open:   openSession,
		data:   make(chan []byte, 1024),
	}
}

func (srv *Server) scanDevices(ctx tdaq.Context, name, serial string) error {
	prof, err := board.Lookup(name)
	if err != nil {
		return err
	}

	devs, err := listDevices()
	if err != nil {
		return fmt.Errorf("could not build list of connected FTDI devices: %w", err)
	}

	found := false
	for _, dev := range devs {
		ctx.Msg.Infof("found %s device %q", bitbang.ProductName(dev.ProductID), dev.Serial)
		if dev.ProductID == prof.Product && dev.Serial == serial {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("could not find %s bridge of %s board with serial %q",
			bitbang.ProductName(prof.Product), prof.Name, serial,
		)
	}
	return nil
}

func (srv *Server) closeSession() error {
	if srv.sess == nil {
		return nil
	}
	err := srv.sess.Close()
	srv.sess = nil
	return err
}

// OnConfig selects the board and the serial number of its bridge.
// The request body holds the name of the board and the serial number,
// encoded as tdaq strings. An empty body keeps the current selection.
func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	if len(req.Body) > 0 {
		dec := tdaq.NewDecoder(bytes.NewReader(req.Body))
		name := dec.ReadStr()
		serial := dec.ReadStr()
		if err := dec.Err(); err != nil {
			return fmt.Errorf("could not decode /config request: %w", err)
		}
		srv.mu.Lock()
		srv.board = name
		srv.serial = serial
		srv.mu.Unlock()
	}

	srv.mu.Lock()
	name, serial := srv.board, srv.serial
	srv.mu.Unlock()

	err := srv.scanDevices(ctx, name, serial)
	if err != nil {
		ctx.Msg.Errorf("could not scan devices: %+v", err)
		return fmt.Errorf("could not scan devices: %w", err)
	}

	return nil
}

// OnInit opens the session with the selected board.
func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.sess != nil {
		ctx.Msg.Errorf("board %s already initialized", srv.board)
		return fmt.Errorf("board %s already initialized", srv.board)
	}

	sess, err := srv.open(srv.board, srv.serial, srv.opts...)
	if err != nil {
		ctx.Msg.Errorf("could not open board %s (serial=%q): %+v", srv.board, srv.serial, err)
		return fmt.Errorf("could not open board %s (serial=%q): %w", srv.board, srv.serial, err)
	}
	srv.sess = sess
	srv.n = 0
	ctx.Msg.Infof("session with board %s: OK", sess.Profile().Name)

	return nil
}

// OnReset closes the session and drops pending dumps.
func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	srv.running = false
	srv.n = 0
	srv.data = make(chan []byte, 1024)

	err := srv.closeSession()
	if err != nil {
		return fmt.Errorf("could not close session: %w", err)
	}
	return nil
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.sess == nil {
		return fmt.Errorf("could not start monitoring: board %s not initialized", srv.board)
	}
	srv.running = true
	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	ctx.Msg.Debugf("received /stop command... -> n=%d", srv.n)
	srv.running = false
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	srv.running = false
	err := srv.closeSession()
	if err != nil {
		return fmt.Errorf("could not close session: %w", err)
	}
	return nil
}

// Regs publishes the register dumps.
func (srv *Server) Regs(ctx tdaq.Context, dst *tdaq.Frame) error {
	srv.mu.Lock()
	data := srv.data
	srv.mu.Unlock()

	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
	case raw := <-data:
		dst.Body = raw
	}
	return nil
}

// Run dumps the registers every tick, while started.
func (srv *Server) Run(ctx tdaq.Context) error {
	for {
		select {
		case <-ctx.Ctx.Done():
			return nil
		default:
			srv.tick(ctx)
		}

		select {
		case <-ctx.Ctx.Done():
			return nil
		case <-time.After(srv.freq):
		}
	}
}

func (srv *Server) tick(ctx tdaq.Context) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if !srv.running || srv.sess == nil {
		return
	}

	regs, err := srv.sess.Dump()
	if err != nil {
		ctx.Msg.Errorf("could not dump registers: %+v", err)
		return
	}

	raw, err := Encode(regs)
	if err != nil {
		ctx.Msg.Errorf("could not encode registers: %+v", err)
		return
	}

	select {
	case srv.data <- raw:
		srv.n++
	default:
	}
}
