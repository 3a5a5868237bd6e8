// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bus

import (
	"fmt"

	"github.com/go-lpc/cpld/bitbang"
	"periph.io/x/conn/v3/physic"
)

// SMI lines of a FT232R.
const (
	SMIMDC = 0x04 // RTS
	SMIMDI = 0x08 // CTS
	SMIMDO = 0x10 // DTR
)

// SMIClock is the sample clock of the SMI bus.
const SMIClock = 3 * physic.MegaHertz

const (
	smiOpRead  = 0x2
	smiOpWrite = 0x1

	smiFrameBits = 66
	smiFrameLen  = 2 * smiFrameBits

	// response sample of the first data bit.
	smiDataPos = 50
)

// SMI is a MDIO-like management bus.
//
// Every transaction is a fixed frame of 66 bits: begin, preamble, start,
// opcode, 10-bit address, turnaround, 16-bit data and end. Each bit is
// sent as two samples, MDC low then high.
type SMI struct {
	line *bitbang.Line
}

// NewSMI returns a SMI bus over the provided line.
// The line must be in synchronous bit-bang mode.
func NewSMI(line *bitbang.Line) *SMI {
	return &SMI{line: line}
}

// Init configures the MDC and MDO lines.
func (bus *SMI) Init() error {
	err := bus.line.Configure(SMIMDC | SMIMDO)
	if err != nil {
		return fmt.Errorf("bus: could not configure SMI lines: %w", err)
	}

	err = bus.line.SetClock(SMIClock)
	if err != nil {
		return fmt.Errorf("bus: could not set SMI clock: %w", err)
	}

	err = bus.line.WriteFrame([]byte{SMIMDC | SMIMDO})
	if err != nil {
		return fmt.Errorf("bus: could not idle SMI lines: %w", err)
	}
	return nil
}

// Read reads len(p) bytes from the registers starting at addr.
// Samples queued by previous frames are flushed before each transaction.
// Each transaction reads one 16-bit word; word i comes from register
// addr+i and fills p[2i] (low byte) and p[2i+1] (high byte).
func (bus *SMI) Read(addr uint64, alen int, p []byte) (int, error) {
	resp := make([]byte, smiFrameLen)
	for i := 0; i < len(p)/2; i++ {
		reg := addr + uint64(i)
		err := bus.line.Flush()
		if err != nil {
			return 0, fmt.Errorf("bus: could not flush SMI samples before register 0x%03X: %w", reg, err)
		}
		err = bus.line.Exchange(smiFrame(smiOpRead, uint16(reg), 0), resp)
		if err != nil {
			return 0, fmt.Errorf("bus: could not read SMI register 0x%03X: %w", reg, err)
		}
		w := smiDecode(resp)
		p[2*i+0] = byte(w)
		p[2*i+1] = byte(w >> 8)
	}
	return 0, nil
}

// Write writes p to the registers starting at addr, one 16-bit word per
// transaction.
func (bus *SMI) Write(addr uint64, alen int, p []byte) (int, error) {
	for i := 0; i < len(p)/2; i++ {
		reg := addr + uint64(i)
		w := uint16(p[2*i]) | uint16(p[2*i+1])<<8
		err := bus.line.WriteFrame(smiFrame(smiOpWrite, uint16(reg), w))
		if err != nil {
			return 0, fmt.Errorf("bus: could not write SMI register 0x%03X: %w", reg, err)
		}
	}
	return 0, nil
}

type smiField struct {
	v uint32
	n int
}

// smiFrame returns the samples of a SMI frame.
func smiFrame(op uint8, addr, data uint16) []byte {
	ta := uint32(0x0)
	if op == smiOpWrite {
		ta = 0x2
	}
	fields := [...]smiField{
		{0x1, 1},         // begin
		{0xFFFFFFFF, 32}, // preamble
		{0x1, 2},         // start
		{uint32(op), 2},
		{uint32(addr), 10},
		{ta, 2},
		{uint32(data), 16},
		{0x1, 1}, // end
	}

	p := make([]byte, 0, smiFrameLen)
	for _, f := range fields {
		for i := f.n - 1; i >= 0; i-- {
			var bit byte
			if (f.v>>uint(i))&1 == 1 {
				bit = SMIMDO
			}
			p = append(p, bit, bit|SMIMDC)
		}
	}
	return p
}

// smiDecode extracts the data word from the samples of a read frame.
func smiDecode(resp []byte) uint16 {
	var v uint16
	for j := 0; j < 16; j++ {
		v <<= 1
		if resp[(smiDataPos+j)*2]&SMIMDI != 0 {
			v |= 1
		}
	}
	return v
}
