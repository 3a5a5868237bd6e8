// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package board holds the register directories of the supported boards.
package board // import "github.com/go-lpc/cpld/board"

import (
	"fmt"
	"sort"
	"strings"
)

// Protocol is the bus used to reach the CPLD of a board.
type Protocol int

const (
	SPI Protocol = iota
	I2C
	SMI
)

func (p Protocol) String() string {
	switch p {
	case SPI:
		return "SPI"
	case I2C:
		return "I2C"
	case SMI:
		return "SMI"
	}
	return fmt.Sprintf("Protocol(%d)", int(p))
}

// Access is the access mode of a register.
type Access int

const (
	ReadOnly Access = iota
	WriteOnly
	ReadWrite
)

func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "R"
	case WriteOnly:
		return "W"
	case ReadWrite:
		return "RW"
	}
	return fmt.Sprintf("Access(%d)", int(a))
}

// Readable reports whether registers with this access mode can be read.
func (a Access) Readable() bool { return a != WriteOnly }

// Writable reports whether registers with this access mode can be written.
func (a Access) Writable() bool { return a != ReadOnly }

// Register describes a CPLD register.
type Register struct {
	Name    string
	Addr    uint64
	AddrLen int // address length in bytes
	ValLen  int // value length in bytes
	Access  Access
}

// Format formats the value of the register for display.
func (r Register) Format(v uint64) string {
	return fmt.Sprintf("%-15s 0x%0*X: 0x%0*X", r.Name, 2*r.AddrLen, r.Addr, 2*r.ValLen, v)
}

// Mask returns the mask of the bits held by the register.
func (r Register) Mask() uint64 {
	if r.ValLen >= 8 {
		return ^uint64(0)
	}
	return 1<<(8*uint(r.ValLen)) - 1
}

// Range is an inclusive range of addresses.
type Range struct {
	Lo, Hi uint64
}

// Contains reports whether addr is inside the range.
func (r Range) Contains(addr uint64) bool {
	return r.Lo <= addr && addr <= r.Hi
}

// Profile describes a board.
type Profile struct {
	Name      string
	Protocol  Protocol
	Product   uint16 // USB product ID of the bridge
	Interface int    // channel of the bridge (0=A, 1=B)

	// Pipelined holds the range of addresses whose reads return the
	// value latched by the previous read.
	Pipelined *Range

	// Flash is the layout of the non-volatile storage, if any.
	Flash *Flash

	regs []Register
	addr map[uint64]int
}

// Registers returns the registers of the board in directory order.
func (p *Profile) Registers() []Register {
	out := make([]Register, len(p.regs))
	copy(out, p.regs)
	return out
}

// Lookup returns the register at the provided address.
func (p *Profile) Lookup(addr uint64) (Register, bool) {
	i, ok := p.addr[addr]
	if !ok {
		return Register{}, false
	}
	return p.regs[i], true
}

// ByName returns the register with the provided name.
func (p *Profile) ByName(name string) (Register, bool) {
	for _, r := range p.regs {
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}
	return Register{}, false
}

// AddrLen returns the address length of the board registers.
func (p *Profile) AddrLen() int {
	if p.Protocol == SPI {
		return 1
	}
	return 2
}

// NewProfile returns the profile p holding the provided registers.
// NewProfile panics on duplicate addresses or invalid register widths.
func NewProfile(p Profile, regs []Register) *Profile {
	p.regs = regs
	p.addr = make(map[uint64]int, len(regs))
	for i, r := range regs {
		if _, dup := p.addr[r.Addr]; dup {
			panic(fmt.Errorf("board: duplicate address 0x%X in %s directory", r.Addr, p.Name))
		}
		if r.AddrLen != p.AddrLen() {
			panic(fmt.Errorf("board: invalid address length %d for %s.%s", r.AddrLen, p.Name, r.Name))
		}
		if r.ValLen < 1 || r.ValLen > 8 {
			panic(fmt.Errorf("board: invalid value length %d for %s.%s", r.ValLen, p.Name, r.Name))
		}
		p.addr[r.Addr] = i
	}
	return &p
}

// Lookup returns the profile of the named board.
func Lookup(name string) (*Profile, error) {
	p, ok := profiles[strings.ToUpper(name)]
	if !ok {
		return nil, fmt.Errorf("board: unknown board %q (valid boards: %s)",
			name, strings.Join(Names(), ", "),
		)
	}
	return p, nil
}

// Names returns the names of all the supported boards.
func Names() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
