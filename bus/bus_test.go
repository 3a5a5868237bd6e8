// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bus

import (
	"errors"
	"testing"

	"github.com/go-lpc/cpld/bitbang"
	"github.com/go-lpc/cpld/board"
	"github.com/go-lpc/cpld/internal/cpldsim"
	"periph.io/x/conn/v3/physic"
)

// recorder is a bridge recording the frames written to it.
type recorder struct {
	frames [][]byte
	masks  []byte
	speed  physic.Frequency
	pins   byte
	err    error
}

func (r *recorder) SetBitmode(mask byte, mode bitbang.Mode) error {
	if r.err != nil {
		return r.err
	}
	r.masks = append(r.masks, mask)
	return nil
}

func (r *recorder) SetSpeed(f physic.Frequency) error {
	r.speed = f
	return r.err
}

func (r *recorder) Tx(w, rd []byte) error {
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, append([]byte(nil), w...))
	return nil
}

func (r *recorder) Pins() (byte, error) { return r.pins, r.err }
func (r *recorder) Close() error        { return nil }

func profile(t *testing.T, name string) *board.Profile {
	t.Helper()
	p, err := board.Lookup(name)
	if err != nil {
		t.Fatalf("could not find board %q: %+v", name, err)
	}
	return p
}

// newEngine returns the initialized engine of the named board, driving a
// simulated device.
func newEngine(t *testing.T, name string) (Engine, cpldsim.Device) {
	t.Helper()
	p := profile(t, name)
	dev := cpldsim.New(p)

	var bus Engine
	switch p.Protocol {
	case board.SPI:
		bus = NewSPI(bitbang.NewLine(dev, bitbang.ModeBitbang, 0))
	case board.I2C:
		bus = NewI2C(bitbang.NewLine(dev, bitbang.ModeBitbang, 0))
	case board.SMI:
		bus = NewSMI(bitbang.NewLine(dev, bitbang.ModeSyncBB, 0))
	}

	err := bus.Init()
	if err != nil {
		t.Fatalf("could not initialize %s bus: %+v", p.Protocol, err)
	}
	return bus, dev
}

func TestProtocolError(t *testing.T) {
	err := error(&ProtocolError{Op: "write", Addr: 0x25, NAKs: 3})
	if got, want := err.Error(), "bus: write of register 0x25: 3 NAK(s)"; got != want {
		t.Fatalf("invalid error message:\ngot= %q\nwant=%q", got, want)
	}

	var perr *ProtocolError
	if !errors.As(err, &perr) || perr.NAKs != 3 {
		t.Fatalf("could not extract protocol error from %+v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		board string
		addr  uint64
		v     []byte
	}{
		{"M3SK", 0x00, []byte{0x78, 0x56, 0x34, 0x12}},
		{"H3SK", 0x80, []byte{0x01, 0x00, 0x00, 0x80}},
		{"V3U", 0x0008, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}},
		{"S4", 0x0025, []byte{0xA5}},
		{"V3HSK", 0x004, []byte{0xEF, 0xBE, 0xAD, 0xDE}},
		{"V3MSK", 0x00E, []byte{0x34, 0x12, 0x00, 0x00}},
	} {
		t.Run(tc.board, func(t *testing.T) {
			bus, dev := newEngine(t, tc.board)
			p := profile(t, tc.board)
			alen := p.AddrLen()

			naks, err := bus.Write(tc.addr, alen, tc.v)
			if err != nil {
				t.Fatalf("could not write: %+v", err)
			}
			if naks != 0 {
				t.Fatalf("invalid write NAKs: %d", naks)
			}

			var want uint64
			for i, b := range tc.v {
				want |= uint64(b) << (8 * uint(i))
			}
			if got := dev.Value(tc.addr, len(tc.v)); got != want {
				t.Fatalf("invalid stored value: got=0x%X, want=0x%X", got, want)
			}

			got := make([]byte, len(tc.v))
			naks, err = bus.Read(tc.addr, alen, got)
			if err != nil {
				t.Fatalf("could not read: %+v", err)
			}
			if naks != 0 {
				t.Fatalf("invalid read NAKs: %d", naks)
			}
			if string(got) != string(tc.v) {
				t.Fatalf("invalid round trip:\ngot= %x\nwant=%x", got, tc.v)
			}
		})
	}
}

func TestTransportError(t *testing.T) {
	for _, tc := range []struct {
		name string
		new  func(l *bitbang.Line) Engine
	}{
		{"spi", func(l *bitbang.Line) Engine { return NewSPI(l) }},
		{"i2c", func(l *bitbang.Line) Engine { return NewI2C(l) }},
		{"smi", func(l *bitbang.Line) Engine { return NewSMI(l) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			boom := errors.New("usb unplugged")
			dev := &recorder{err: boom}
			bus := tc.new(bitbang.NewLine(dev, bitbang.ModeBitbang, 0))

			if err := bus.Init(); !errors.Is(err, boom) {
				t.Fatalf("invalid init error: %+v", err)
			}

			_, err := bus.Write(0x02, 2, []byte{1, 2})
			var terr *bitbang.TransportError
			if !errors.As(err, &terr) {
				t.Fatalf("invalid write error: %+v", err)
			}

			_, err = bus.Read(0x02, 2, make([]byte, 2))
			if !errors.As(err, &terr) {
				t.Fatalf("invalid read error: %+v", err)
			}
		})
	}
}
