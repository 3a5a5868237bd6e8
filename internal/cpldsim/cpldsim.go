// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cpldsim simulates the CPLD of a board, seen through the lines of
// a bit-banged USB bridge.
package cpldsim // import "github.com/go-lpc/cpld/internal/cpldsim"

import (
	"fmt"

	"github.com/go-lpc/cpld/bitbang"
	"github.com/go-lpc/cpld/board"
	"periph.io/x/conn/v3/physic"
)

// Txn is a register transaction decoded by a simulated device.
type Txn struct {
	Op   string // sync, read or write
	Addr uint64
	Bits int // number of data bits exchanged
}

func (txn Txn) String() string {
	return fmt.Sprintf("%s(0x%X, bits=%d)", txn.Op, txn.Addr, txn.Bits)
}

// Device is a simulated CPLD.
type Device interface {
	bitbang.Bridge

	// Load stores the n-byte value v at addr, bypassing the bus.
	Load(addr uint64, n int, v uint64)
	// Value returns the n-byte value at addr, bypassing the bus.
	Value(addr uint64, n int) uint64

	// Calls returns the number of calls made to the bridge.
	Calls() int
	// Log returns the decoded transactions.
	Log() []Txn
	// Flash returns the flash model of the device, if any.
	Flash() *Flash
}

// New returns a simulated CPLD for the provided board.
func New(p *board.Profile) Device {
	switch p.Protocol {
	case board.SPI:
		return NewSPI(p)
	case board.I2C:
		return NewI2C(p)
	case board.SMI:
		return NewSMI(p)
	}
	panic(fmt.Errorf("cpldsim: unknown protocol %v", p.Protocol))
}

// base holds the state shared by all simulated bridges.
type base struct {
	mask   byte
	mode   bitbang.Mode
	speed  physic.Frequency
	calls  int
	log    []Txn
	closed bool
}

func (b *base) SetSpeed(f physic.Frequency) error {
	b.calls++
	b.speed = f
	return nil
}

func (b *base) Close() error {
	b.closed = true
	return nil
}

func (b *base) Calls() int { return b.calls }

func (b *base) Log() []Txn {
	out := make([]Txn, len(b.log))
	copy(out, b.log)
	return out
}

// Mode returns the current bit-bang mode and direction mask.
func (b *base) Mode() (bitbang.Mode, byte) { return b.mode, b.mask }

// Speed returns the sample clock.
func (b *base) Speed() physic.Frequency { return b.speed }

// Closed reports whether the bridge was closed.
func (b *base) Closed() bool { return b.closed }

func (b *base) record(op string, addr uint64, bits int) {
	b.log = append(b.log, Txn{Op: op, Addr: addr, Bits: bits})
}

func mask(n int) uint64 {
	if n >= 8 {
		return ^uint64(0)
	}
	return 1<<(8*uint(n)) - 1
}
