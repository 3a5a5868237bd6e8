// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpldsim

import (
	"github.com/go-lpc/cpld/bitbang"
	"github.com/go-lpc/cpld/board"
)

const (
	i2cSDA = 0x80
	i2cSCL = 0x40
)

type i2cState int

const (
	i2cIdle   i2cState = iota
	i2cRecv            // receiving a byte from the master
	i2cAckOut          // acknowledging a received byte
	i2cSend            // sending a byte to the master
	i2cAckIn           // waiting for the master acknowledge
)

// I2C simulates the I2C slave of a CPLD, with 16-bit register addresses.
//
// Lines are open-drain: a line is low when the master drives it (its
// direction bit is set) or when the slave pulls it down.
type I2C struct {
	base

	Addr    uint8 // bus address of the slave
	Stretch int   // number of SCL polls held low after each release
	Stuck   bool  // SCL is held low forever

	mem   []byte
	flash *Flash

	state   i2cState
	reading bool
	first   bool // next byte is the address byte
	nbits   int
	cur     byte
	alen    int // address bytes received
	ptr     uint64
	buf     []byte
	nak     bool // the last received byte is not acknowledged
	sda     bool // slave pulls SDA low
	hold    int
	scl     bool // previous SCL level
	sdaPrev bool // previous SDA level
}

// NewI2C returns a simulated I2C CPLD for the board p.
func NewI2C(p *board.Profile) *I2C {
	return &I2C{
		Addr:    0xE0,
		mem:     make([]byte, 1<<16),
		flash:   newFlash(p.Flash),
		scl:     true,
		sdaPrev: true,
	}
}

func (dev *I2C) Flash() *Flash { return dev.flash }

func (dev *I2C) Load(addr uint64, n int, v uint64) {
	for i := 0; i < n; i++ {
		dev.mem[(addr+uint64(i))&0xFFFF] = byte(v >> (8 * uint(i)))
	}
}

func (dev *I2C) Value(addr uint64, n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(dev.mem[(addr+uint64(i))&0xFFFF]) << (8 * uint(i))
	}
	return v
}

// Mem returns the n bytes stored at addr.
func (dev *I2C) Mem(addr uint64, n int) []byte {
	out := make([]byte, n)
	copy(out, dev.mem[addr:])
	return out
}

func (dev *I2C) levels() (scl, sda bool) {
	scl = dev.mask&i2cSCL == 0
	sda = dev.mask&i2cSDA == 0 && !dev.sda
	return scl, sda
}

func (dev *I2C) SetBitmode(mask byte, mode bitbang.Mode) error {
	dev.calls++
	dev.mode = mode
	dev.mask = mask

	scl, sda := dev.levels()
	switch {
	case scl && dev.scl && dev.sdaPrev && !sda:
		dev.start()
	case scl && dev.scl && !dev.sdaPrev && sda:
		dev.stop()
	case scl && !dev.scl:
		dev.hold = dev.Stretch
		dev.rise(sda)
	case !scl && dev.scl:
		dev.fall()
	}
	dev.scl, dev.sdaPrev = dev.levels()
	return nil
}

func (dev *I2C) Tx(w, r []byte) error {
	dev.calls++
	for i := range r {
		r[i] = dev.pins()
	}
	return nil
}

func (dev *I2C) Pins() (byte, error) {
	dev.calls++
	return dev.pins(), nil
}

func (dev *I2C) pins() byte {
	scl, sda := dev.levels()
	if dev.Stuck {
		scl = false
	}
	if scl && dev.hold > 0 {
		dev.hold--
		scl = false
	}
	var v byte
	if scl {
		v |= i2cSCL
	}
	if sda {
		v |= i2cSDA
	}
	return v
}

func (dev *I2C) start() {
	dev.commit()
	dev.state = i2cRecv
	dev.first = true
	dev.nbits = 0
	dev.cur = 0
	dev.sda = false
}

func (dev *I2C) stop() {
	dev.commit()
	dev.state = i2cIdle
	dev.reading = false
	dev.alen = 0
	dev.sda = false
}

func (dev *I2C) rise(sda bool) {
	switch dev.state {
	case i2cRecv:
		dev.cur <<= 1
		if sda {
			dev.cur |= 1
		}
		dev.nbits++
	case i2cAckIn:
		if sda {
			dev.state = i2cIdle
		}
	}
}

func (dev *I2C) fall() {
	switch dev.state {
	case i2cRecv:
		if dev.nbits < 8 {
			return
		}
		dev.recv(dev.cur)
		dev.nbits = 0
		dev.cur = 0
		if dev.nak {
			dev.state = i2cIdle
			return
		}
		dev.state = i2cAckOut
		dev.sda = true
	case i2cAckOut:
		dev.sda = false
		if dev.reading {
			dev.state = i2cSend
			dev.load()
			return
		}
		dev.state = i2cRecv
	case i2cSend:
		dev.nbits++
		if dev.nbits == 8 {
			dev.sda = false
			dev.state = i2cAckIn
			return
		}
		dev.drive()
	case i2cAckIn:
		dev.ptr++
		dev.state = i2cSend
		dev.load()
	}
}

// recv handles a received byte.
func (dev *I2C) recv(b byte) {
	dev.nak = false
	if dev.first {
		dev.first = false
		if b&0xFE != dev.Addr&0xFE {
			dev.nak = true
			return
		}
		dev.reading = b&0x01 != 0
		if dev.reading {
			dev.record("read", dev.ptr, 0)
		} else {
			dev.alen = 0
			dev.ptr = 0
			dev.buf = dev.buf[:0]
		}
		return
	}

	if dev.alen < 2 {
		dev.ptr = dev.ptr<<8 | uint64(b)
		dev.alen++
		return
	}
	dev.buf = append(dev.buf, b)
}

// load prepares the next byte to send and drives its first bit.
func (dev *I2C) load() {
	addr := dev.ptr & 0xFFFF
	dev.cur = dev.mem[addr]
	if dev.flash != nil && addr == dev.flash.layout.Status {
		dev.cur = dev.flash.status()
	}
	dev.nbits = 0
	dev.log[len(dev.log)-1].Bits += 8
	dev.drive()
}

func (dev *I2C) drive() {
	dev.sda = (dev.cur>>(7-uint(dev.nbits)))&1 == 0
}

// commit stores the bytes received by a write transaction.
func (dev *I2C) commit() {
	if dev.reading || len(dev.buf) == 0 {
		return
	}
	defer func() { dev.buf = dev.buf[:0] }()

	if dev.flash != nil {
		if ipage, ok := dev.flash.erase(dev.ptr, dev.buf); ok {
			page := dev.flash.layout.Pages[ipage]
			for i := 0; i < page.Size; i++ {
				dev.mem[page.Base+uint64(i)] = 0xFF
			}
			dev.record("erase", dev.ptr, 8*len(dev.buf))
			return
		}
		dev.flash.chunk(dev.ptr)
	}

	for i, b := range dev.buf {
		dev.mem[(dev.ptr+uint64(i))&0xFFFF] = b
	}
	dev.record("write", dev.ptr, 8*len(dev.buf))
}
