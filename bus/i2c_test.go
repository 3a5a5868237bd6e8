// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bus

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/go-lpc/cpld/bitbang"
	"github.com/go-lpc/cpld/internal/cpldsim"
)

func newI2C(t *testing.T) (*I2C, *cpldsim.I2C) {
	t.Helper()
	dev := cpldsim.NewI2C(profile(t, "V3U"))
	bus := NewI2C(bitbang.NewLine(dev, bitbang.ModeBitbang, 0))
	err := bus.Init()
	if err != nil {
		t.Fatalf("could not initialize I2C bus: %+v", err)
	}
	return bus, dev
}

func TestI2CInit(t *testing.T) {
	dev := &recorder{}
	bus := NewI2C(bitbang.NewLine(dev, bitbang.ModeBitbang, 0))
	err := bus.Init()
	if err != nil {
		t.Fatalf("could not initialize I2C bus: %+v", err)
	}
	if got, want := dev.masks, []byte{I2CSCL | I2CSDA}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid direction masks: got=%x, want=%x", got, want)
	}
	if got, want := bus.Addr, uint8(I2CAddr); got != want {
		t.Fatalf("invalid device address: got=0x%X, want=0x%X", got, want)
	}
}

func TestI2CWireOrder(t *testing.T) {
	bus, dev := newI2C(t)

	_, err := bus.Write(0x1008, 2, []byte{0x01, 0x02, 0x03})
	if err != nil {
		t.Fatalf("could not write: %+v", err)
	}
	if got, want := dev.Mem(0x1008, 3), []byte{0x01, 0x02, 0x03}; !bytes.Equal(got, want) {
		t.Fatalf("invalid memory: got=%x, want=%x", got, want)
	}

	want := cpldsim.Txn{Op: "write", Addr: 0x1008, Bits: 24}
	log := dev.Log()
	if got := log[len(log)-1]; got != want {
		t.Fatalf("invalid transaction: got=%v, want=%v", got, want)
	}
}

func TestI2CRead(t *testing.T) {
	bus, dev := newI2C(t)
	dev.Load(0x0000, 4, 0x0A0B0C0D)

	p := make([]byte, 4)
	naks, err := bus.Read(0x0000, 2, p)
	if err != nil {
		t.Fatalf("could not read: %+v", err)
	}
	if naks != 0 {
		t.Fatalf("invalid NAKs: %d", naks)
	}
	if got, want := p, []byte{0x0D, 0x0C, 0x0B, 0x0A}; !bytes.Equal(got, want) {
		t.Fatalf("invalid value: got=%x, want=%x", got, want)
	}

	want := cpldsim.Txn{Op: "read", Addr: 0x0000, Bits: 32}
	log := dev.Log()
	if got := log[len(log)-1]; got != want {
		t.Fatalf("invalid transaction: got=%v, want=%v", got, want)
	}
}

func TestI2CWrongAddress(t *testing.T) {
	bus, dev := newI2C(t)
	bus.Addr = 0xA0

	naks, err := bus.Write(0x0025, 2, []byte{0x42})
	if err != nil {
		t.Fatalf("could not write: %+v", err)
	}
	if got, want := naks, 1+2+1; got != want {
		t.Fatalf("invalid NAKs: got=%d, want=%d", got, want)
	}
	if got := dev.Value(0x0025, 1); got != 0 {
		t.Fatalf("register modified by another device address: 0x%X", got)
	}

	naks, err = bus.Read(0x0025, 2, make([]byte, 1))
	if err != nil {
		t.Fatalf("could not read: %+v", err)
	}
	if got, want := naks, 1+2+1; got != want {
		t.Fatalf("invalid NAKs: got=%d, want=%d", got, want)
	}
}

func TestI2CClockStretching(t *testing.T) {
	bus, dev := newI2C(t)
	dev.Stretch = 5

	_, err := bus.Write(0x0036, 2, []byte{0x5A})
	if err != nil {
		t.Fatalf("could not write with clock stretching: %+v", err)
	}
	if got, want := dev.Value(0x0036, 1), uint64(0x5A); got != want {
		t.Fatalf("invalid value: got=0x%X, want=0x%X", got, want)
	}

	bus.Stretch = 3
	_, err = bus.Write(0x0036, 2, []byte{0x00})
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, ErrTimedOut)
	}
}

func TestI2CStuckClock(t *testing.T) {
	bus, dev := newI2C(t)
	dev.Stuck = true
	bus.Stretch = 10

	_, err := bus.Read(0x0000, 2, make([]byte, 4))
	switch {
	case err == nil:
		t.Fatalf("expected an error")
	case !errors.Is(err, ErrTimedOut):
		t.Fatalf("invalid error: got=%+v, want=%+v", err, ErrTimedOut)
	}

	want := "bus: could not read I2C register 0x0000: bus: SCL still low after 10 polls: timed out"
	if got := err.Error(); got != want {
		t.Fatalf("invalid error message:\ngot= %q\nwant=%q", got, want)
	}
}

func TestI2CFlashStatus(t *testing.T) {
	bus, dev := newI2C(t)
	layout := profile(t, "V3U").Flash

	_, err := bus.Write(layout.Pages[0].Erase, 2, layout.Erase)
	if err != nil {
		t.Fatalf("could not erase page: %+v", err)
	}
	if got, want := dev.Flash().Erases, [2]int{1, 0}; got != want {
		t.Fatalf("invalid erases: got=%v, want=%v", got, want)
	}

	p := make([]byte, layout.StatusLen)
	polls := 0
	for p[0] != layout.Ready {
		polls++
		_, err = bus.Read(layout.Status, 2, p)
		if err != nil {
			t.Fatalf("could not read status: %+v", err)
		}
		if polls > 10 {
			t.Fatalf("flash never ready")
		}
	}
	if got, want := polls, dev.Flash().Busy+1; got != want {
		t.Fatalf("invalid number of polls: got=%d, want=%d", got, want)
	}
	if got, want := dev.Mem(layout.Pages[0].Base, 4), []byte{0xFF, 0xFF, 0xFF, 0xFF}; !bytes.Equal(got, want) {
		t.Fatalf("page not erased: %x", got)
	}
}
