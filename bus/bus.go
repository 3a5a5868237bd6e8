// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bus implements the serial buses used to reach the registers of a
// CPLD, bit-banged over the lines of a USB bridge.
//
// Register values are exchanged as byte slices holding the value in
// little-endian order: p[0] is the least significant byte. Each bus maps
// them to its own wire order.
package bus // import "github.com/go-lpc/cpld/bus"

import (
	"errors"
	"fmt"
)

// ErrTimedOut is returned when a device does not answer within the
// configured number of polls.
var ErrTimedOut = errors.New("timed out")

// Engine is a register access protocol.
type Engine interface {
	// Init synchronizes the bus with the device.
	// It must be called once, before any register access.
	Init() error

	// Read reads len(p) bytes from the register at addr.
	// alen is the length of the address on the wire.
	// Read returns the number of NAKs received from the device.
	Read(addr uint64, alen int, p []byte) (int, error)

	// Write writes p to the register at addr.
	// Write returns the number of NAKs received from the device.
	Write(addr uint64, alen int, p []byte) (int, error)
}

// ProtocolError reports a transaction that was not acknowledged by the
// device.
type ProtocolError struct {
	Op   string // read or write
	Addr uint64
	NAKs int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("bus: %s of register 0x%X: %d NAK(s)", e.Op, e.Addr, e.NAKs)
}
