// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpldsim

import (
	"github.com/go-lpc/cpld/bitbang"
	"github.com/go-lpc/cpld/board"
)

const (
	smiMDC = 0x04
	smiMDI = 0x08
	smiMDO = 0x10

	smiBits    = 66
	smiDataPos = 50
)

// SMI simulates the management interface of a SMI CPLD: 1024 16-bit
// registers, addressed by 66-bit frames.
type SMI struct {
	base

	mem   [1024]uint16
	latch uint16
	pipe  *board.Range
	flash *Flash
}

// NewSMI returns a simulated SMI CPLD for the board p.
func NewSMI(p *board.Profile) *SMI {
	return &SMI{
		pipe:  p.Pipelined,
		flash: newFlash(p.Flash),
	}
}

func (dev *SMI) Flash() *Flash { return dev.flash }

func (dev *SMI) SetBitmode(mask byte, mode bitbang.Mode) error {
	dev.calls++
	dev.mask = mask
	dev.mode = mode
	return nil
}

func (dev *SMI) Pins() (byte, error) {
	dev.calls++
	return 0, nil
}

// Load stores v in the ceil(n/2) words starting at addr, low word first.
func (dev *SMI) Load(addr uint64, n int, v uint64) {
	for i := 0; i < (n+1)/2; i++ {
		dev.mem[(addr+uint64(i))&0x3FF] = uint16(v >> (16 * uint(i)))
	}
}

func (dev *SMI) Value(addr uint64, n int) uint64 {
	var v uint64
	for i := 0; i < (n+1)/2; i++ {
		v |= uint64(dev.mem[(addr+uint64(i))&0x3FF]) << (16 * uint(i))
	}
	return v & mask(n)
}

// Word returns the register at addr.
func (dev *SMI) Word(addr uint64) uint16 { return dev.mem[addr&0x3FF] }

func (dev *SMI) Tx(w, r []byte) error {
	dev.calls++
	for i := range r {
		r[i] = 0
	}
	if len(w) != 2*smiBits {
		return nil
	}

	var bits [smiBits]byte
	for k := range bits {
		lo, hi := w[2*k], w[2*k+1]
		if hi != lo|smiMDC || lo&smiMDC != 0 {
			dev.record("invalid", 0, k)
			return nil
		}
		if lo&smiMDO != 0 {
			bits[k] = 1
		}
	}

	field := func(beg, n int) uint32 {
		var v uint32
		for _, b := range bits[beg : beg+n] {
			v = v<<1 | uint32(b)
		}
		return v
	}

	if field(0, 1) != 1 || field(1, 32) != 0xFFFFFFFF || field(33, 2) != 0x1 || field(65, 1) != 1 {
		dev.record("invalid", 0, smiBits)
		return nil
	}

	var (
		op   = field(35, 2)
		addr = uint64(field(37, 10))
		data = uint16(field(49, 16))
	)

	switch op {
	case 0x2:
		v := dev.read(addr)
		dev.record("read", addr, 16)
		if len(r) >= 2*smiBits {
			for j := 0; j < 16; j++ {
				if (v>>uint(15-j))&1 == 1 {
					r[(smiDataPos+j)*2] |= smiMDI
				}
			}
		}
	case 0x1:
		dev.write(addr, data)
	default:
		dev.record("invalid", addr, smiBits)
	}
	return nil
}

func (dev *SMI) read(addr uint64) uint16 {
	if dev.flash != nil && addr == dev.flash.layout.Status {
		return uint16(dev.flash.status())
	}
	if dev.pipe != nil && dev.pipe.Contains(addr) {
		v := dev.latch
		dev.latch = dev.mem[addr]
		return v
	}
	return dev.mem[addr]
}

func (dev *SMI) write(addr uint64, v uint16) {
	if dev.flash != nil {
		if ipage, ok := dev.flash.erase(addr, []byte{byte(v), byte(v >> 8)}); ok {
			page := dev.flash.layout.Pages[ipage]
			for i := 0; i < page.Size/2; i++ {
				dev.mem[page.Base+uint64(i)] = 0xFFFF
			}
			dev.record("erase", addr, 16)
			return
		}
		dev.flash.chunk(addr)
	}
	dev.mem[addr] = v
	dev.record("write", addr, 16)
}
