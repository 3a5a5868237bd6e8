// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bitbang

import (
	"bytes"
	"reflect"
	"testing"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/d2xx"
)

const errIO = d2xx.Err(4)

// fakeHandle models the D2XX view of a FTDI device in bit-bang mode.
// In synchronous mode, every written sample queues the state of the lines
// in rx.
type fakeHandle struct {
	typ    uint32
	pid    uint16
	serial string
	busy   bool
	eeErr  d2xx.Err

	closed   bool
	timeouts [2]int
	baud     uint32
	mask     byte
	mode     byte
	modes    []byte
	pins     byte // levels driven by the device on the inputs
	w        []byte
	rx       []byte
	werr     d2xx.Err
}

func (h *fakeHandle) Close() d2xx.Err { h.closed = true; return 0 }

func (h *fakeHandle) GetDeviceInfo() (uint32, uint16, uint16, d2xx.Err) {
	return h.typ, VendorID, h.pid, 0
}

func (h *fakeHandle) EEPROMRead(typ uint32, ee *d2xx.EEPROM) d2xx.Err {
	if h.eeErr != 0 {
		return h.eeErr
	}
	ee.Serial = h.serial
	return 0
}

func (h *fakeHandle) SetTimeouts(r, w int) d2xx.Err {
	h.timeouts = [2]int{r, w}
	return 0
}

func (h *fakeHandle) SetBaudRate(hz uint32) d2xx.Err {
	h.baud = hz
	return 0
}

func (h *fakeHandle) GetQueueStatus() (uint32, d2xx.Err) { return uint32(len(h.rx)), 0 }

func (h *fakeHandle) Read(b []byte) (int, d2xx.Err) {
	n := copy(b, h.rx)
	h.rx = h.rx[n:]
	return n, 0
}

func (h *fakeHandle) Write(b []byte) (int, d2xx.Err) {
	if h.werr != 0 {
		return 0, h.werr
	}
	h.w = append(h.w, b...)
	if h.mode == byte(ModeSyncBB) {
		for _, v := range b {
			h.rx = append(h.rx, h.sample(v))
		}
	}
	return len(b), 0
}

func (h *fakeHandle) sample(v byte) byte {
	return v&h.mask | h.pins&^h.mask
}

func (h *fakeHandle) GetBitMode() (byte, d2xx.Err) { return h.pins &^ h.mask, 0 }

func (h *fakeHandle) SetBitMode(mask, mode byte) d2xx.Err {
	h.mask = mask
	h.mode = mode
	h.modes = append(h.modes, mode)
	return 0
}

func withHandles(hs ...*fakeHandle) func() {
	count, open := d2xxCount, d2xxOpen
	d2xxCount = func() (int, d2xx.Err) { return len(hs), 0 }
	d2xxOpen = func(i int) (handle, d2xx.Err) {
		if hs[i].busy {
			return nil, 3
		}
		return hs[i], 0
	}
	return func() { d2xxCount, d2xxOpen = count, open }
}

func TestList(t *testing.T) {
	var (
		r = &fakeHandle{typ: 5, pid: FT232R, serial: "A0001"}
		b = &fakeHandle{typ: 5, pid: FT232R, serial: "A0002", busy: true}
		h = &fakeHandle{typ: 6, pid: FT2232, serial: "B0002"}
	)
	defer withHandles(r, b, h)()

	devs, err := List()
	if err != nil {
		t.Fatalf("could not list devices: %+v", err)
	}

	want := []DeviceInfo{
		{Name: "FT232R(0)", Type: "FT232R", VendorID: VendorID, ProductID: FT232R, Serial: "A0001"},
		{Name: "FT2232H(2)", Type: "FT2232H", VendorID: VendorID, ProductID: FT2232, Serial: "B0002"},
	}
	if !reflect.DeepEqual(devs, want) {
		t.Fatalf("invalid device list:\ngot= %+v\nwant=%+v", devs, want)
	}
	if !r.closed || !h.closed {
		t.Fatalf("listed devices must be closed")
	}
}

func TestListError(t *testing.T) {
	t.Run("count", func(t *testing.T) {
		count := d2xxCount
		defer func() { d2xxCount = count }()
		d2xxCount = func() (int, d2xx.Err) { return 0, errIO }

		_, err := List()
		if err == nil {
			t.Fatalf("expected an error")
		}
	})

	t.Run("eeprom", func(t *testing.T) {
		h := &fakeHandle{typ: 5, pid: FT232R, eeErr: errIO}
		defer withHandles(h)()

		_, err := List()
		if err == nil {
			t.Fatalf("expected an error")
		}
		if !h.closed {
			t.Fatalf("device left opened")
		}
	})
}

func TestOpen(t *testing.T) {
	var (
		r1 = &fakeHandle{typ: 5, pid: FT232R, serial: "S1"}
		r2 = &fakeHandle{typ: 5, pid: FT232R, serial: "S2"}
		ha = &fakeHandle{typ: 6, pid: FT2232, serial: "S3"}
		hb = &fakeHandle{typ: 6, pid: FT2232, serial: "S3"}
		hs = []*fakeHandle{r1, r2, ha, hb}
	)
	defer withHandles(hs...)()

	for _, tc := range []struct {
		name   string
		pid    uint16
		serial string
		iface  int
		want   *fakeHandle
		err    string
	}{
		{name: "ft232r", pid: FT232R, serial: "S2", want: r2},
		{name: "ft232r-first", pid: FT232R, want: r1},
		{name: "ft2232-a", pid: FT2232, serial: "S3", iface: 0, want: ha},
		{name: "ft2232-b", pid: FT2232, serial: "S3", iface: 1, want: hb},
		{
			name:   "no-such-serial",
			pid:    FT232R,
			serial: "S9",
			err:    `bitbang: could not find FTDI device (vid=0x0403, pid=0x6001, serial="S9", interface=0)`,
		},
		{
			name:   "no-such-interface",
			pid:    FT2232,
			serial: "S3",
			iface:  2,
			err:    `bitbang: could not find FTDI device (vid=0x0403, pid=0x6010, serial="S3", interface=2)`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			for _, h := range hs {
				h.closed = false
				h.timeouts = [2]int{}
			}

			dev, err := Open(tc.pid, tc.serial, tc.iface)
			switch {
			case err != nil && tc.err != "":
				if got, want := err.Error(), tc.err; got != want {
					t.Fatalf("invalid error:\ngot= %s\nwant=%s", got, want)
				}
				return
			case err != nil && tc.err == "":
				t.Fatalf("could not open device: %+v", err)
			case err == nil && tc.err != "":
				t.Fatalf("expected an error (%s)", tc.err)
			}

			br, ok := dev.(*ftdiBridge)
			if !ok {
				t.Fatalf("invalid bridge type %T", dev)
			}
			if br.h != handle(tc.want) {
				t.Fatalf("opened the wrong device")
			}
			if got, want := tc.want.timeouts, [2]int{ftdiReadTimeout, ftdiWriteTimeout}; got != want {
				t.Fatalf("invalid timeouts: got=%v, want=%v", got, want)
			}
			for _, h := range hs {
				if h != tc.want && !h.closed && h.timeouts != [2]int{} {
					t.Fatalf("unselected device left configured")
				}
			}
			if tc.want.closed {
				t.Fatalf("selected device closed")
			}
		})
	}
}

func TestBridgeSync(t *testing.T) {
	h := &fakeHandle{pins: 0x08}
	br := &ftdiBridge{h: h, name: "FT232R(0)"}

	err := br.SetBitmode(0x14, ModeSyncBB)
	if err != nil {
		t.Fatalf("could not set bitmode: %+v", err)
	}
	if h.mask != 0x14 || h.mode != 0x04 {
		t.Fatalf("invalid bitmode: mask=0x%02x, mode=0x%02x", h.mask, h.mode)
	}

	// frames written without read-back leave their samples queued.
	err = br.Tx([]byte{0x14, 0x10, 0x14}, nil)
	if err != nil {
		t.Fatalf("could not write: %+v", err)
	}
	if got, want := len(h.rx), 3; got != want {
		t.Fatalf("invalid queue: got=%d, want=%d", got, want)
	}

	h.pins = 0x00
	r := make([]byte, 2)
	err = br.Tx([]byte{0x04, 0x00}, r)
	if err != nil {
		t.Fatalf("could not exchange: %+v", err)
	}
	if got, want := r, []byte{0x04, 0x00}; !bytes.Equal(got, want) {
		t.Fatalf("read back stale samples: got=%x, want=%x", got, want)
	}
	if len(h.rx) != 0 || br.pending != 0 {
		t.Fatalf("samples left queued: rx=%d, pending=%d", len(h.rx), br.pending)
	}

	err = br.Tx([]byte{1}, make([]byte, 2))
	if err == nil {
		t.Fatalf("expected an error reading more samples than written")
	}
}

func TestBridgeFlush(t *testing.T) {
	h := &fakeHandle{}
	br := &ftdiBridge{h: h}
	if err := br.SetBitmode(0x14, ModeSyncBB); err != nil {
		t.Fatalf("could not set bitmode: %+v", err)
	}

	err := br.Tx(make([]byte, 132), nil)
	if err != nil {
		t.Fatalf("could not write: %+v", err)
	}
	h.rx = append(h.rx, 0xff) // sample nobody accounted for.

	err = br.Flush()
	if err != nil {
		t.Fatalf("could not flush: %+v", err)
	}
	if len(h.rx) != 0 || br.pending != 0 {
		t.Fatalf("samples left queued: rx=%d, pending=%d", len(h.rx), br.pending)
	}

	// queue shorter than the accounted samples.
	br.pending = 4
	err = br.Flush()
	if err == nil {
		t.Fatalf("expected a read timeout")
	}
}

func TestBridgeAsync(t *testing.T) {
	h := &fakeHandle{pins: 0x10}
	br := &ftdiBridge{h: h}

	err := br.SetBitmode(0x4c, ModeBitbang)
	if err != nil {
		t.Fatalf("could not set bitmode: %+v", err)
	}
	if h.mask != 0x4c || h.mode != 0x01 {
		t.Fatalf("invalid bitmode: mask=0x%02x, mode=0x%02x", h.mask, h.mode)
	}

	err = br.Tx([]byte{0x4c, 0x48}, nil)
	if err != nil {
		t.Fatalf("could not write: %+v", err)
	}
	if got, want := h.w, []byte{0x4c, 0x48}; !bytes.Equal(got, want) {
		t.Fatalf("invalid samples: got=%x, want=%x", got, want)
	}
	if len(h.rx) != 0 || br.pending != 0 {
		t.Fatalf("asynchronous writes must not queue samples")
	}

	r := make([]byte, 2)
	err = br.Tx([]byte{0x08}, r)
	if err != nil {
		t.Fatalf("could not exchange: %+v", err)
	}
	if got, want := r, []byte{0x10, 0x10}; !bytes.Equal(got, want) {
		t.Fatalf("invalid snapshots: got=%x, want=%x", got, want)
	}
}

func TestBridgePins(t *testing.T) {
	h := &fakeHandle{pins: 0x10}
	br := &ftdiBridge{h: h}
	if err := br.SetBitmode(0x04, ModeBitbang); err != nil {
		t.Fatalf("could not set bitmode: %+v", err)
	}

	pins, err := br.Pins()
	if err != nil {
		t.Fatalf("could not read pins: %+v", err)
	}
	if pins != 0x10 {
		t.Fatalf("invalid pins: got=0x%02x, want=0x10", pins)
	}
	if len(h.w) != 0 {
		t.Fatalf("reading the pins drove the lines: %x", h.w)
	}
}

func TestBridgeSpeed(t *testing.T) {
	h := &fakeHandle{}
	br := &ftdiBridge{h: h}

	err := br.SetSpeed(3 * physic.MegaHertz)
	if err != nil {
		t.Fatalf("could not set speed: %+v", err)
	}
	if got, want := h.baud, uint32(3_000_000); got != want {
		t.Fatalf("invalid baud rate: got=%d, want=%d", got, want)
	}

	err = br.SetSpeed(physic.MilliHertz)
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestBridgeErrors(t *testing.T) {
	h := &fakeHandle{werr: errIO}
	br := &ftdiBridge{h: h, name: "FT232R(0)"}

	err := br.Tx([]byte{1}, nil)
	if err == nil {
		t.Fatalf("expected an error")
	}

	err = br.Close()
	if err != nil {
		t.Fatalf("could not close: %+v", err)
	}
	if !h.closed {
		t.Fatalf("device not closed")
	}
	if got, want := h.modes, []byte{modeReset}; !bytes.Equal(got, want) {
		t.Fatalf("bit mode not reset: got=%x, want=%x", got, want)
	}
}

func TestDevType(t *testing.T) {
	for _, tc := range []struct {
		t    uint32
		want string
	}{
		{0, "FT232BM"},
		{5, "FT232R"},
		{6, "FT2232H"},
		{8, "FT232H"},
		{42, "unknown"},
	} {
		if got := devType(tc.t); got != tc.want {
			t.Errorf("type=%d: got=%q, want=%q", tc.t, got, tc.want)
		}
	}
}

func TestProductName(t *testing.T) {
	for _, tc := range []struct {
		pid  uint16
		want string
	}{
		{FT232R, "FT232R"},
		{FT2232, "FT2232"},
		{FT4232, "FT4232"},
		{FT232H, "FT232H"},
		{0x1234, "unknown"},
	} {
		if got := ProductName(tc.pid); got != tc.want {
			t.Errorf("pid=0x%04x: got=%q, want=%q", tc.pid, got, tc.want)
		}
	}
}
