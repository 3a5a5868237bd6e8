// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpldsim

import (
	"github.com/go-lpc/cpld/bitbang"
	"github.com/go-lpc/cpld/board"
)

const (
	spiMOSI  = 0x40
	spiMISO  = 0x10
	spiSCK   = 0x04
	spiSSTBZ = 0x08
)

// SPI simulates the shift register of a SPI CPLD.
//
// Data pulses are shifted in until a marker pulse: a stop marker commits a
// write (or the synchronization sequence), a turnaround marker starts
// shifting the addressed register out on MISO.
type SPI struct {
	base

	Synced bool // the synchronization sequence was received

	regs  map[uint8]uint64
	width map[uint8]int

	bits []bool // shifted-in bits
	out  []bool // bits left to shift out
	miso bool
	txn  int // index of the current read transaction
}

// NewSPI returns a simulated SPI CPLD holding the registers of p.
func NewSPI(p *board.Profile) *SPI {
	dev := &SPI{
		regs:  make(map[uint8]uint64),
		width: make(map[uint8]int),
	}
	for _, r := range p.Registers() {
		dev.width[uint8(r.Addr)] = r.ValLen
	}
	return dev
}

func (dev *SPI) SetBitmode(mask byte, mode bitbang.Mode) error {
	dev.calls++
	dev.mask = mask
	dev.mode = mode
	return nil
}

func (dev *SPI) Tx(w, r []byte) error {
	dev.calls++
	for i := 0; i+1 < len(w); i += 2 {
		dev.pulse(w[i], w[i+1])
	}
	for i := range r {
		r[i] = dev.pins()
	}
	return nil
}

func (dev *SPI) Pins() (byte, error) {
	dev.calls++
	return dev.pins(), nil
}

func (dev *SPI) pins() byte {
	if dev.miso {
		return spiMISO
	}
	return 0
}

func (dev *SPI) Flash() *Flash { return nil }

func (dev *SPI) Load(addr uint64, n int, v uint64) {
	dev.regs[uint8(addr)] = v & mask(n)
}

func (dev *SPI) Value(addr uint64, n int) uint64 {
	return dev.regs[uint8(addr)] & mask(n)
}

func (dev *SPI) pulse(hi, lo byte) {
	data := hi & spiMOSI
	switch {
	case hi&^spiMOSI == spiSSTBZ|spiSCK && lo == data|spiSSTBZ:
		if len(dev.out) > 0 {
			dev.shiftOut()
			return
		}
		dev.bits = append(dev.bits, data != 0)
	case hi == spiMOSI|spiSCK && lo == spiMOSI:
		dev.stop()
	case hi == spiSCK && lo == 0:
		dev.turnaround()
	default:
		dev.record("invalid", uint64(hi)<<8|uint64(lo), 0)
		dev.bits = dev.bits[:0]
	}
}

func (dev *SPI) shiftOut() {
	dev.miso = dev.out[0]
	dev.out = dev.out[1:]
	dev.log[dev.txn].Bits++
}

// addr pops the 8 address bits from the shifted-in bits.
func (dev *SPI) addr() (uint8, bool) {
	n := len(dev.bits)
	if n < 8 {
		return 0, false
	}
	var a uint8
	for _, b := range dev.bits[n-8:] {
		a <<= 1
		if b {
			a |= 1
		}
	}
	dev.bits = dev.bits[:n-8]
	return a, true
}

func (dev *SPI) stop() {
	defer func() { dev.bits = dev.bits[:0] }()

	addr, ok := dev.addr()
	if !ok {
		dev.record("invalid", 0, len(dev.bits))
		return
	}

	if addr == 0xFE && isSync(dev.bits) {
		dev.Synced = true
		dev.record("sync", uint64(addr), len(dev.bits))
		return
	}

	if !dev.Synced {
		dev.record("ignored", uint64(addr), len(dev.bits))
		return
	}

	var v uint64
	for _, b := range dev.bits {
		v <<= 1
		if b {
			v |= 1
		}
	}
	w := dev.width[addr]
	if w == 0 {
		w = len(dev.bits) / 8
	}
	dev.regs[addr] = v & mask(w)
	dev.record("write", uint64(addr), len(dev.bits))
}

func (dev *SPI) turnaround() {
	addr, ok := dev.addr()
	dev.bits = dev.bits[:0]
	if !ok {
		dev.record("invalid", 0, 0)
		return
	}

	w := dev.width[addr]
	if w == 0 {
		w = 4
	}
	v := dev.regs[addr]
	if !dev.Synced {
		v = 0
	}
	dev.out = dev.out[:0]
	for i := 8*w - 1; i >= 0; i-- {
		dev.out = append(dev.out, (v>>uint(i))&1 == 1)
	}
	dev.txn = len(dev.log)
	dev.record("read", uint64(addr), 0)
}

// isSync reports whether bits hold the 32 synchronization pulses.
func isSync(bits []bool) bool {
	if len(bits) != 32 {
		return false
	}
	for _, b := range bits[:31] {
		if b {
			return false
		}
	}
	return bits[31]
}
