// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bitbang

import (
	"fmt"

	"golang.org/x/xerrors"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/d2xx"
)

// VendorID is the USB vendor ID of FTDI.
const VendorID = 0x0403

// USB product IDs of the supported FTDI bridges.
const (
	FT232R = 0x6001
	FT2232 = 0x6010
	FT4232 = 0x6011
	FT232H = 0x6014
)

// ProductName returns the name of a FTDI product ID.
func ProductName(pid uint16) string {
	switch pid {
	case FT232R:
		return "FT232R"
	case FT2232:
		return "FT2232"
	case FT4232:
		return "FT4232"
	case FT232H:
		return "FT232H"
	}
	return "unknown"
}

// DeviceInfo describes a connected FTDI device.
type DeviceInfo struct {
	Name      string
	Type      string
	VendorID  uint16
	ProductID uint16
	Serial    string
}

// devTypes are the chip names of the D2XX device types.
var devTypes = [...]string{
	"FT232BM", "FT232AM", "FT100AX", "unknown", "FT2232C",
	"FT232R", "FT2232H", "FT4232H", "FT232H", "FTXSeries",
}

func devType(t uint32) string {
	if int(t) < len(devTypes) {
		return devTypes[t]
	}
	return "unknown"
}

// handle is the part of a d2xx.Handle driving a bridge.
type handle interface {
	Close() d2xx.Err
	GetDeviceInfo() (uint32, uint16, uint16, d2xx.Err)
	EEPROMRead(devType uint32, ee *d2xx.EEPROM) d2xx.Err
	SetTimeouts(readMS, writeMS int) d2xx.Err
	SetBaudRate(hz uint32) d2xx.Err
	GetQueueStatus() (uint32, d2xx.Err)
	Read(b []byte) (int, d2xx.Err)
	Write(b []byte) (int, d2xx.Err)
	GetBitMode() (byte, d2xx.Err)
	SetBitMode(mask, mode byte) d2xx.Err
}

var (
	d2xxCount = d2xx.CreateDeviceInfoList
	d2xxOpen  = func(i int) (handle, d2xx.Err) { return d2xx.Open(i) }
)

// I/O timeouts of an opened bridge, in milliseconds.
const (
	ftdiReadTimeout  = 1000
	ftdiWriteTimeout = 1000
)

const modeReset = 0x00

func d2xxError(op string, e d2xx.Err) error {
	if e == 0 {
		return nil
	}
	return xerrors.Errorf("d2xx: %s: %s", op, e.String())
}

// walk opens each FTDI device in turn and calls f with its handle.
// f keeps the handle when it returns true; otherwise the handle is closed.
// Devices already opened by another process are skipped.
func walk(f func(h handle, info DeviceInfo) bool) error {
	n, e := d2xxCount()
	if err := d2xxError("could not list devices", e); err != nil {
		return xerrors.Errorf("bitbang: %w", err)
	}

	for i := 0; i < n; i++ {
		h, e := d2xxOpen(i)
		if e != 0 {
			continue
		}
		info, err := deviceInfo(i, h)
		if err != nil {
			h.Close()
			return xerrors.Errorf("bitbang: could not describe FTDI device %d: %w", i, err)
		}
		if f(h, info) {
			return nil
		}
		h.Close()
	}
	return nil
}

func deviceInfo(i int, h handle) (DeviceInfo, error) {
	t, vid, pid, e := h.GetDeviceInfo()
	if err := d2xxError("could not get device info", e); err != nil {
		return DeviceInfo{}, err
	}

	var ee d2xx.EEPROM
	if err := d2xxError("could not read EEPROM", h.EEPROMRead(t, &ee)); err != nil {
		return DeviceInfo{}, err
	}

	return DeviceInfo{
		Name:      fmt.Sprintf("%s(%d)", devType(t), i),
		Type:      devType(t),
		VendorID:  vid,
		ProductID: pid,
		Serial:    ee.Serial,
	}, nil
}

// List returns the FTDI devices connected to the host.
func List() ([]DeviceInfo, error) {
	var out []DeviceInfo
	err := walk(func(h handle, info DeviceInfo) bool {
		out = append(out, info)
		return false
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Open opens the FTDI bridge with the provided USB product ID and serial
// number.
// Multi-channel devices expose one device per channel, sharing the serial
// number of the chip: iface selects the channel (0 for A, 1 for B).
func Open(pid uint16, serial string, iface int) (Bridge, error) {
	var (
		n  = 0
		br *ftdiBridge
	)
	err := walk(func(h handle, info DeviceInfo) bool {
		if info.VendorID != VendorID || info.ProductID != pid {
			return false
		}
		if serial != "" && info.Serial != serial {
			return false
		}
		if n != iface {
			n++
			return false
		}
		br = &ftdiBridge{h: h, name: info.Name}
		return true
	})
	if err != nil {
		return nil, err
	}
	if br == nil {
		return nil, xerrors.Errorf(
			"bitbang: could not find FTDI device (vid=0x%04x, pid=0x%04x, serial=%q, interface=%d)",
			VendorID, pid, serial, iface,
		)
	}

	err = d2xxError("could not set timeouts", br.h.SetTimeouts(ftdiReadTimeout, ftdiWriteTimeout))
	if err != nil {
		br.h.Close()
		return nil, xerrors.Errorf("bitbang: could not open %s: %w", br.name, err)
	}
	return br, nil
}

// ftdiBridge bit-bangs the data bus of a FTDI device (or of one channel of
// a multi-channel device) through the D2XX driver.
//
// In synchronous bit-bang mode, each written sample queues one sample of
// the lines in the receive buffer of the device. pending counts the queued
// samples nobody asked for yet.
type ftdiBridge struct {
	h       handle
	name    string
	mode    Mode
	pending int
}

func (br *ftdiBridge) String() string { return br.name }

func (br *ftdiBridge) SetBitmode(mask byte, mode Mode) error {
	err := d2xxError("could not set bit mode", br.h.SetBitMode(mask, byte(mode)))
	if err != nil {
		return xerrors.Errorf("bitbang: could not set %v mode (mask=0x%02x) of %s: %w", mode, mask, br.name, err)
	}
	br.mode = mode
	return nil
}

func (br *ftdiBridge) SetSpeed(f physic.Frequency) error {
	hz := f / physic.Hertz
	if hz <= 0 || hz > 1<<32-1 {
		return xerrors.Errorf("bitbang: invalid sample clock %v", f)
	}
	err := d2xxError("could not set baud rate", br.h.SetBaudRate(uint32(hz)))
	if err != nil {
		return xerrors.Errorf("bitbang: could not set sample clock of %s: %w", br.name, err)
	}
	return nil
}

// Tx writes the samples of w.
// In synchronous mode, r receives the samples clocked along w; queued
// samples of previous writes are discarded first. In asynchronous mode, r
// receives snapshots of the lines taken after w was written.
func (br *ftdiBridge) Tx(w, r []byte) error {
	sync := br.mode == ModeSyncBB
	if sync && len(r) > len(w) {
		return xerrors.Errorf("bitbang: cannot read %d samples out of %d written samples", len(r), len(w))
	}
	if sync && len(r) != 0 {
		err := br.Flush()
		if err != nil {
			return err
		}
	}

	err := br.write(w)
	if err != nil {
		return err
	}
	if sync {
		br.pending += len(w)
	}

	switch {
	case len(r) == 0:
		return nil
	case sync:
		err = br.read(r)
		if err != nil {
			return err
		}
		br.pending -= len(r)
		return nil
	default:
		for i := range r {
			r[i], err = br.Pins()
			if err != nil {
				return err
			}
		}
		return nil
	}
}

// Pins reads the lines without driving them.
func (br *ftdiBridge) Pins() (byte, error) {
	v, e := br.h.GetBitMode()
	if err := d2xxError("could not get bit mode", e); err != nil {
		return 0, xerrors.Errorf("bitbang: could not sample lines of %s: %w", br.name, err)
	}
	return v, nil
}

// Flush discards the samples queued in the receive buffer.
func (br *ftdiBridge) Flush() error {
	if br.pending > 0 {
		err := br.read(make([]byte, br.pending))
		if err != nil {
			return err
		}
		br.pending = 0
	}

	n, e := br.h.GetQueueStatus()
	if err := d2xxError("could not get queue status", e); err != nil {
		return xerrors.Errorf("bitbang: could not flush %s: %w", br.name, err)
	}
	if n == 0 {
		return nil
	}
	return br.read(make([]byte, n))
}

func (br *ftdiBridge) Close() error {
	err := d2xxError("could not reset bit mode", br.h.SetBitMode(0, modeReset))
	if e := d2xxError("could not close", br.h.Close()); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return xerrors.Errorf("bitbang: could not close %s: %w", br.name, err)
	}
	return nil
}

func (br *ftdiBridge) write(p []byte) error {
	for len(p) > 0 {
		n, e := br.h.Write(p)
		if err := d2xxError("could not write", e); err != nil {
			return xerrors.Errorf("bitbang: could not write samples to %s: %w", br.name, err)
		}
		if n == 0 {
			return xerrors.Errorf("bitbang: could not write samples to %s: timeout", br.name)
		}
		p = p[n:]
	}
	return nil
}

func (br *ftdiBridge) read(p []byte) error {
	for len(p) > 0 {
		n, e := br.h.Read(p)
		if err := d2xxError("could not read", e); err != nil {
			return xerrors.Errorf("bitbang: could not read samples from %s: %w", br.name, err)
		}
		if n == 0 {
			return xerrors.Errorf("bitbang: could not read samples from %s: timeout", br.name)
		}
		p = p[n:]
	}
	return nil
}
