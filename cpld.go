// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpld

import (
	"errors"
	"fmt"
	"log"

	"github.com/go-lpc/cpld/bitbang"
	"github.com/go-lpc/cpld/board"
	"github.com/go-lpc/cpld/bus"
)

var openBridge = bitbang.Open

// Session is an open connection to the CPLD of a board.
//
// A Session is not safe for concurrent use.
type Session struct {
	msg  *log.Logger
	cfg  config
	prof *board.Profile
	line *bitbang.Line
	bus  bus.Engine
}

// Entry is the value of a register, as returned by Session.Dump.
// AddrLen and ValLen are the widths of the address and of the value, in
// bytes.
type Entry struct {
	Name    string `json:"name"`
	Addr    uint64 `json:"addr"`
	AddrLen int    `json:"addr_len"`
	ValLen  int    `json:"val_len"`
	Value   uint64 `json:"value"`
}

func newEntry(reg board.Register, v uint64) Entry {
	return Entry{
		Name:    reg.Name,
		Addr:    reg.Addr,
		AddrLen: reg.AddrLen,
		ValLen:  reg.ValLen,
		Value:   v,
	}
}

func (e Entry) String() string {
	reg := board.Register{Name: e.Name, Addr: e.Addr, AddrLen: e.AddrLen, ValLen: e.ValLen}
	return reg.Format(e.Value)
}

// Open opens the bridge of the named board, identified by its USB serial
// number, and synchronizes the bus with its CPLD.
func Open(name, serial string, opts ...Option) (*Session, error) {
	prof, err := board.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("cpld: could not find board: %w", err)
	}

	dev, err := openBridge(prof.Product, serial, prof.Interface)
	if err != nil {
		return nil, fmt.Errorf("cpld: could not open %s bridge: %w", prof.Name, err)
	}

	return NewSession(prof, dev, opts...)
}

// NewSession synchronizes the bus of the board through an already opened
// bridge. The bridge is closed when the synchronization fails.
func NewSession(prof *board.Profile, dev bitbang.Bridge, opts ...Option) (*Session, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	sess := &Session{
		msg:  cfg.msg,
		cfg:  cfg,
		prof: prof,
	}

	switch prof.Protocol {
	case board.SPI:
		sess.line = bitbang.NewLine(dev, bitbang.ModeBitbang, cfg.settle)
		sess.bus = bus.NewSPI(sess.line)
	case board.I2C:
		sess.line = bitbang.NewLine(dev, bitbang.ModeBitbang, cfg.settle)
		i2c := bus.NewI2C(sess.line)
		i2c.Stretch = cfg.stretch
		sess.bus = i2c
	case board.SMI:
		sess.line = bitbang.NewLine(dev, bitbang.ModeSyncBB, cfg.settle)
		sess.bus = bus.NewSMI(sess.line)
	default:
		_ = dev.Close()
		return nil, fmt.Errorf("cpld: unknown protocol %v for board %s", prof.Protocol, prof.Name)
	}

	err := sess.bus.Init()
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("cpld: could not initialize %s bus of %s: %w", prof.Protocol, prof.Name, err)
	}

	return sess, nil
}

// Profile returns the profile of the board.
func (sess *Session) Profile() *board.Profile { return sess.prof }

// Close closes the bridge.
func (sess *Session) Close() error {
	return sess.line.Close()
}

func (sess *Session) lookup(op string, addr uint64) (board.Register, error) {
	reg, ok := sess.prof.Lookup(addr)
	if !ok {
		return reg, fmt.Errorf(
			"cpld: could not %s register 0x%X of %s: %w",
			op, addr, sess.prof.Name, ErrUnsupportedAddress,
		)
	}
	return reg, nil
}

// Read returns the value of the register at addr.
// When the CPLD did not acknowledge the transaction, Read returns the
// value received along with a *ProtocolError.
func (sess *Session) Read(addr uint64) (uint64, error) {
	reg, err := sess.lookup("read", addr)
	if err != nil {
		return 0, err
	}
	if !reg.Access.Readable() {
		return 0, fmt.Errorf("cpld: could not read write-only register %s: %w", reg.Name, ErrAccessDenied)
	}

	p := make([]byte, reg.ValLen)
	naks, err := sess.read(addr, p)
	if err != nil {
		return 0, fmt.Errorf("cpld: could not read register %s: %w", reg.Name, err)
	}

	v := decode(p)
	if naks > 0 {
		return v, &ProtocolError{Op: "read", Addr: addr, NAKs: naks}
	}
	return v, nil
}

// Write writes v to the register at addr.
func (sess *Session) Write(addr, v uint64) error {
	reg, err := sess.lookup("write", addr)
	if err != nil {
		return err
	}
	if !reg.Access.Writable() {
		return fmt.Errorf("cpld: could not write read-only register %s: %w", reg.Name, ErrAccessDenied)
	}
	if v&^reg.Mask() != 0 {
		return fmt.Errorf("cpld: value 0x%X overflows the %d byte(s) of register %s", v, reg.ValLen, reg.Name)
	}

	sess.msg.Printf("Writing register 0x%0*X with value 0x%0*X", 2*reg.AddrLen, addr, 2*reg.ValLen, v)

	naks, err := sess.bus.Write(addr, reg.AddrLen, encode(v, reg.ValLen))
	if err != nil {
		return fmt.Errorf("cpld: could not write register %s: %w", reg.Name, err)
	}
	if naks > 0 {
		return &ProtocolError{Op: "write", Addr: addr, NAKs: naks}
	}
	return nil
}

// Dump reads all the readable registers of the board, in directory order.
// Dump stops at the first failing register.
func (sess *Session) Dump() ([]Entry, error) {
	regs := sess.prof.Registers()
	out := make([]Entry, 0, len(regs))
	for _, reg := range regs {
		if !reg.Access.Readable() {
			continue
		}
		v, err := sess.Read(reg.Addr)
		if err != nil {
			var perr *ProtocolError
			if errors.As(err, &perr) {
				out = append(out, newEntry(reg, v))
			}
			return out, fmt.Errorf("cpld: could not dump %s registers: %w", sess.prof.Name, err)
		}
		out = append(out, newEntry(reg, v))
	}
	return out, nil
}

// read reads len(p) bytes at addr, honoring the pipelined address range of
// the board: the first read of a pipelined address only latches it.
func (sess *Session) read(addr uint64, p []byte) (int, error) {
	alen := sess.prof.AddrLen()
	if r := sess.prof.Pipelined; r != nil && r.Contains(addr) {
		naks, err := sess.bus.Read(addr, alen, make([]byte, 2))
		if err != nil {
			return naks, err
		}
		if len(p) > 2 {
			addr++
		}
		n, err := sess.bus.Read(addr, alen, p)
		return naks + n, err
	}
	return sess.bus.Read(addr, alen, p)
}

// encode returns the n least significant bytes of v, least significant
// first.
func encode(v uint64, n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(v >> (8 * uint(i)))
	}
	return p
}

func decode(p []byte) uint64 {
	var v uint64
	for i, b := range p {
		v |= uint64(b) << (8 * uint(i))
	}
	return v
}
