// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bus

import (
	"fmt"
	"time"

	"github.com/go-lpc/cpld/bitbang"
	"periph.io/x/conn/v3/gpio"
)

// I2C lines of the second channel of a FT2232.
const (
	I2CSDA = 0x80
	I2CSCL = 0x40
)

// I2CAddr is the bus address of the CPLD.
const I2CAddr = 0xE0

// DefaultStretch is the default number of polls of a released SCL line
// before giving up on a device stretching the clock.
const DefaultStretch = 1000

const (
	ack = 0
	nak = 1
)

// I2C is an open-drain I2C master.
//
// Lines are never driven high: a line is pulled low by switching it to an
// output (driven low), and released by switching it back to an input, the
// external pull-up presenting a high level.
type I2C struct {
	line *bitbang.Line

	Addr    uint8         // bus address of the device
	Delay   time.Duration // delay between two line transitions
	Stretch int           // maximum number of SCL polls

	err error
}

// NewI2C returns an I2C bus over the provided line.
func NewI2C(line *bitbang.Line) *I2C {
	return &I2C{
		line:    line,
		Addr:    I2CAddr,
		Stretch: DefaultStretch,
	}
}

// Init pulls both lines low.
func (bus *I2C) Init() error {
	err := bus.line.Configure(I2CSCL | I2CSDA)
	if err != nil {
		return fmt.Errorf("bus: could not configure I2C lines: %w", err)
	}
	time.Sleep(time.Millisecond)
	return nil
}

// Read reads len(p) bytes from the register at addr of the CPLD.
func (bus *I2C) Read(addr uint64, alen int, p []byte) (int, error) {
	return bus.ReadData(bus.Addr, addr, alen, p)
}

// Write writes p to the register at addr of the CPLD.
func (bus *I2C) Write(addr uint64, alen int, p []byte) (int, error) {
	return bus.WriteData(bus.Addr, addr, alen, p)
}

// WriteData writes p to the register reg of the device at address dev.
// The register address is sent most significant byte first, the value
// least significant byte first.
// WriteData returns the number of NAKs received.
func (bus *I2C) WriteData(dev uint8, reg uint64, alen int, p []byte) (int, error) {
	bus.err = nil
	naks := 0

	bus.start()
	naks += bus.writeByte(dev & 0xFE)
	for i := alen - 1; i >= 0; i-- {
		naks += bus.writeByte(byte(reg >> (8 * uint(i))))
	}
	for _, v := range p {
		naks += bus.writeByte(v)
	}
	bus.stop()

	if bus.err != nil {
		err := bus.err
		bus.err = nil
		return naks, fmt.Errorf("bus: could not write I2C register 0x%0*X: %w", 2*alen, reg, err)
	}
	return naks, nil
}

// ReadData reads len(p) bytes from the register reg of the device at
// address dev.
// ReadData returns the number of NAKs received.
func (bus *I2C) ReadData(dev uint8, reg uint64, alen int, p []byte) (int, error) {
	bus.err = nil
	naks := 0

	bus.start()
	naks += bus.writeByte(dev & 0xFE)
	for i := alen - 1; i >= 0; i-- {
		naks += bus.writeByte(byte(reg >> (8 * uint(i))))
	}
	bus.start()
	naks += bus.writeByte(dev | 0x01)
	for i := range p {
		ackbit := ack
		if i+1 == len(p) {
			ackbit = nak
		}
		p[i] = bus.readByte(ackbit)
	}
	bus.stop()

	if bus.err != nil {
		err := bus.err
		bus.err = nil
		return naks, fmt.Errorf("bus: could not read I2C register 0x%0*X: %w", 2*alen, reg, err)
	}
	return naks, nil
}

func (bus *I2C) delay() {
	if bus.Delay > 0 {
		time.Sleep(bus.Delay)
	}
}

// release switches the lines of mask to inputs.
func (bus *I2C) release(mask byte) {
	if bus.err != nil {
		return
	}
	bus.err = bus.line.Release(mask)
}

// clear drives the lines of mask low.
func (bus *I2C) clear(mask byte) {
	if bus.err != nil {
		return
	}
	bus.err = bus.line.Drive(mask)
}

func (bus *I2C) level(mask byte) gpio.Level {
	if bus.err != nil {
		return gpio.Low
	}
	lvl, err := bus.line.Level(mask)
	bus.err = err
	return lvl
}

// waitSCL waits for the released SCL line to go high.
func (bus *I2C) waitSCL() {
	n := bus.Stretch
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		if bus.level(I2CSCL) == gpio.High || bus.err != nil {
			return
		}
	}
	bus.err = fmt.Errorf("bus: SCL still low after %d polls: %w", n, ErrTimedOut)
}

func (bus *I2C) start() {
	bus.release(I2CSCL)
	bus.waitSCL()
	bus.delay()
	bus.release(I2CSDA)
	bus.delay()

	bus.clear(I2CSDA)
	bus.delay()
	bus.clear(I2CSCL)
	bus.delay()
}

func (bus *I2C) stop() {
	bus.clear(I2CSDA)
	bus.delay()

	bus.release(I2CSCL)
	bus.waitSCL()
	bus.delay()

	bus.release(I2CSDA)
	bus.delay()
}

func (bus *I2C) writeBit(bit int) {
	if bit != 0 {
		bus.release(I2CSDA)
	} else {
		bus.clear(I2CSDA)
	}
	bus.delay()

	bus.release(I2CSCL)
	bus.delay()
	bus.waitSCL()

	bus.clear(I2CSCL)
}

func (bus *I2C) readBit() int {
	bus.release(I2CSDA)
	bus.delay()

	bus.release(I2CSCL)
	bus.waitSCL()
	bus.delay()

	bit := 0
	if bus.level(I2CSDA) == gpio.High {
		bit = 1
	}
	bus.clear(I2CSCL)

	return bit
}

// writeByte sends v most significant bit first and returns the
// acknowledge bit of the device (0 for ACK).
func (bus *I2C) writeByte(v byte) int {
	for i := 0; i < 8; i++ {
		bus.writeBit(int(v>>7) & 1)
		v <<= 1
	}
	return bus.readBit()
}

// readByte reads a byte and answers with the provided acknowledge bit.
func (bus *I2C) readByte(ackbit int) byte {
	var v byte
	for i := 0; i < 8; i++ {
		v = v<<1 | byte(bus.readBit())
	}
	bus.writeBit(ackbit)
	return v
}
