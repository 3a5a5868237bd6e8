// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bitbang drives the GPIO lines of a USB bridge in bit-bang mode.
package bitbang // import "github.com/go-lpc/cpld/bitbang"

import (
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Mode is a bit-bang mode of the bridge.
type Mode byte

const (
	ModeBitbang Mode = 0x01 // asynchronous bit-bang
	ModeSyncBB  Mode = 0x04 // synchronous bit-bang
)

func (m Mode) String() string {
	switch m {
	case ModeBitbang:
		return "bitbang"
	case ModeSyncBB:
		return "sync-bitbang"
	}
	return "unknown"
}

// Bridge is a USB-to-GPIO bridge driven in bit-bang mode.
//
// Each byte written to or read from a Bridge is a snapshot of its 8 data
// lines.
type Bridge interface {
	// SetBitmode selects the bit-bang mode and the direction of the
	// lines (a bit set to 1 is an output).
	SetBitmode(mask byte, mode Mode) error

	// SetSpeed sets the pace at which samples are clocked out.
	SetSpeed(f physic.Frequency) error

	// Tx writes the samples of w on the lines.
	// When r is not empty, r[i] holds the state of the lines sampled
	// along w[i].
	Tx(w, r []byte) error

	// Pins returns the current state of the lines.
	Pins() (byte, error)

	Close() error
}

// Flusher is implemented by bridges queuing the samples read back in
// synchronous bit-bang mode.
type Flusher interface {
	// Flush discards the queued samples.
	Flush() error
}

// Settle is the delay that must follow every frame written on the lines.
const Settle = 100 * time.Microsecond

var sleep = time.Sleep

// Line is a session on a Bridge.
// It owns the direction of the lines and enforces the settle delay between
// frames.
//
// A Line is not safe for concurrent use.
type Line struct {
	dev    Bridge
	mode   Mode
	dir    byte
	settle time.Duration
}

// NewLine returns a line driving dev with the provided bit-bang mode.
// settle is the delay applied after each frame.
func NewLine(dev Bridge, mode Mode, settle time.Duration) *Line {
	return &Line{dev: dev, mode: mode, settle: settle}
}

// Mode returns the bit-bang mode of the line.
func (l *Line) Mode() Mode { return l.mode }

// Direction returns the current direction mask (1=output).
func (l *Line) Direction() byte { return l.dir }

// Configure sets the direction of all lines at once.
func (l *Line) Configure(mask byte) error {
	err := l.dev.SetBitmode(mask, l.mode)
	if err != nil {
		return &TransportError{Op: "configure", Err: err}
	}
	l.dir = mask
	return nil
}

// Drive switches the lines of mask to outputs.
func (l *Line) Drive(mask byte) error {
	return l.Configure(l.dir | mask)
}

// Release switches the lines of mask to inputs.
func (l *Line) Release(mask byte) error {
	return l.Configure(l.dir &^ mask)
}

// WriteFrame writes a frame of samples and waits for the lines to settle.
func (l *Line) WriteFrame(p []byte) error {
	err := l.dev.Tx(p, nil)
	if err != nil {
		return &TransportError{Op: "write frame", Err: err}
	}
	if l.settle > 0 {
		sleep(l.settle)
	}
	return nil
}

// Exchange writes the samples of w and reads back len(r) samples.
func (l *Line) Exchange(w, r []byte) error {
	err := l.dev.Tx(w, r)
	if err != nil {
		return &TransportError{Op: "exchange frame", Err: err}
	}
	return nil
}

// Flush discards the samples queued by the bridge, if it queues any.
func (l *Line) Flush() error {
	dev, ok := l.dev.(Flusher)
	if !ok {
		return nil
	}
	err := dev.Flush()
	if err != nil {
		return &TransportError{Op: "flush", Err: err}
	}
	return nil
}

// ReadPins returns a snapshot of the lines.
func (l *Line) ReadPins() (byte, error) {
	v, err := l.dev.Pins()
	if err != nil {
		return 0, &TransportError{Op: "read pins", Err: err}
	}
	return v, nil
}

// Level returns the level of the line selected by mask.
func (l *Line) Level(mask byte) (gpio.Level, error) {
	v, err := l.ReadPins()
	if err != nil {
		return gpio.Low, err
	}
	return gpio.Level(v&mask != 0), nil
}

// SetClock sets the sample clock of the bridge.
func (l *Line) SetClock(f physic.Frequency) error {
	err := l.dev.SetSpeed(f)
	if err != nil {
		return &TransportError{Op: "set clock", Err: err}
	}
	return nil
}

// Close closes the underlying bridge.
func (l *Line) Close() error {
	err := l.dev.Close()
	if err != nil {
		return &TransportError{Op: "close", Err: err}
	}
	return nil
}

// TransportError reports a failed exchange with the bridge.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return "bitbang: could not " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }
