// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bus

import (
	"fmt"

	"github.com/go-lpc/cpld/bitbang"
	"periph.io/x/conn/v3/physic"
)

// SPI lines of a FT232R.
const (
	SPIMOSI  = 0x40 // DCD
	SPIMISO  = 0x10 // DTR
	SPISCK   = 0x04 // RTS
	SPISSTBZ = 0x08 // CTS
)

const (
	spiSyncPulses = 32
	spiSyncAddr   = 0xFE
)

// SPIClock is the sample clock of the SPI bus.
const SPIClock = 57600 * physic.Hertz

// SPI is the shift-register protocol of the SPI boards.
//
// Each bit is sent as two samples: clock high with the data bit, then
// clock low with the data bit held.
type SPI struct {
	line *bitbang.Line
}

// NewSPI returns a SPI bus over the provided line.
// The line must be in asynchronous bit-bang mode.
func NewSPI(line *bitbang.Line) *SPI {
	return &SPI{line: line}
}

// Init synchronizes the shift register of the device.
func (bus *SPI) Init() error {
	err := bus.line.Configure(SPIMOSI | SPISCK | SPISSTBZ)
	if err != nil {
		return fmt.Errorf("bus: could not configure SPI lines: %w", err)
	}

	err = bus.line.SetClock(SPIClock)
	if err != nil {
		return fmt.Errorf("bus: could not set SPI clock: %w", err)
	}

	err = bus.line.WriteFrame(spiSyncFrame())
	if err != nil {
		return fmt.Errorf("bus: could not send SPI sync pulses: %w", err)
	}

	err = bus.line.WriteFrame(spiAddrFrame(spiSyncAddr, 1, SPIMOSI|SPISCK, SPIMOSI))
	if err != nil {
		return fmt.Errorf("bus: could not send SPI sync address: %w", err)
	}

	return nil
}

// Read reads len(p) bytes from the register at addr.
// The first byte shifted out by the device is the most significant one.
func (bus *SPI) Read(addr uint64, alen int, p []byte) (int, error) {
	err := bus.line.WriteFrame(spiAddrFrame(addr, alen, SPISCK, 0))
	if err != nil {
		return 0, fmt.Errorf("bus: could not send SPI read address 0x%0*X: %w", 2*alen, addr, err)
	}

	clk := []byte{SPISSTBZ | SPISCK, SPISSTBZ}
	for i := len(p) - 1; i >= 0; i-- {
		var v byte
		for j := 0; j < 8; j++ {
			err = bus.line.WriteFrame(clk)
			if err != nil {
				return 0, fmt.Errorf("bus: could not clock SPI register 0x%0*X: %w", 2*alen, addr, err)
			}
			var pins byte
			pins, err = bus.line.ReadPins()
			if err != nil {
				return 0, fmt.Errorf("bus: could not sample SPI register 0x%0*X: %w", 2*alen, addr, err)
			}
			v <<= 1
			if pins&SPIMISO != 0 {
				v |= 1
			}
		}
		p[i] = v
	}

	return 0, nil
}

// Write writes p to the register at addr, most significant byte first.
func (bus *SPI) Write(addr uint64, alen int, p []byte) (int, error) {
	data := make([]byte, 0, 2*8*len(p))
	for i := len(p) - 1; i >= 0; i-- {
		data = spiAppendBits(data, uint64(p[i]), 8)
	}

	err := bus.line.WriteFrame(data)
	if err != nil {
		return 0, fmt.Errorf("bus: could not send SPI data to 0x%0*X: %w", 2*alen, addr, err)
	}

	err = bus.line.WriteFrame(spiAddrFrame(addr, alen, SPIMOSI|SPISCK, SPIMOSI))
	if err != nil {
		return 0, fmt.Errorf("bus: could not send SPI write address 0x%0*X: %w", 2*alen, addr, err)
	}

	return 0, nil
}

// spiSyncFrame returns the dummy clock pulses realigning the shift register
// of the device. The last pulse carries the sentinel bit.
func spiSyncFrame() []byte {
	p := make([]byte, 0, 2*spiSyncPulses)
	for i := 0; i < spiSyncPulses-1; i++ {
		p = append(p, SPISSTBZ|SPISCK, SPISSTBZ)
	}
	return append(p, SPIMOSI|SPISSTBZ|SPISCK, SPIMOSI|SPISSTBZ)
}

// spiAddrFrame returns the address bits followed by the marker (hi, lo).
func spiAddrFrame(addr uint64, alen int, hi, lo byte) []byte {
	p := make([]byte, 0, 2*8*alen+2)
	p = spiAppendBits(p, addr, 8*alen)
	return append(p, hi, lo)
}

// spiAppendBits appends the n low bits of v, most significant first.
func spiAppendBits(p []byte, v uint64, n int) []byte {
	for i := n - 1; i >= 0; i-- {
		var bit byte
		if (v>>uint(i))&1 == 1 {
			bit = SPIMOSI
		}
		p = append(p, bit|SPISSTBZ|SPISCK, bit|SPISSTBZ)
	}
	return p
}
