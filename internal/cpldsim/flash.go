// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpldsim

import (
	"bytes"

	"github.com/go-lpc/cpld/board"
)

// Flash models the flash controller of a CPLD.
//
// After an erase or a chunk write, the status reports the device busy for
// Busy polls. Writes received while busy are counted as overruns.
type Flash struct {
	Busy  int  // polls reporting busy after each operation
	Stuck bool // never report ready

	layout *board.Flash
	busy   int

	Erases   [2]int // number of erases per page
	Chunks   int    // number of chunks written
	Polls    int    // number of status reads
	Overruns int    // chunks or erases received while busy
}

func newFlash(layout *board.Flash) *Flash {
	if layout == nil {
		return nil
	}
	return &Flash{Busy: 2, layout: layout}
}

// status returns the value of the status register.
func (f *Flash) status() byte {
	f.Polls++
	switch {
	case f.Stuck:
		return ^f.layout.Ready
	case f.busy > 0:
		f.busy--
		return ^f.layout.Ready
	}
	return f.layout.Ready
}

// erase reports which page is erased by writing v at addr, if any.
func (f *Flash) erase(addr uint64, v []byte) (int, bool) {
	for i, page := range f.layout.Pages {
		if page.Erase == addr && bytes.Equal(v, f.layout.Erase) {
			f.op()
			f.Erases[i]++
			return i, true
		}
	}
	return 0, false
}

// chunk records a chunk written at addr, if addr belongs to a page.
func (f *Flash) chunk(addr uint64) {
	for _, page := range f.layout.Pages {
		end := page.Base + uint64(page.Size/f.layout.Chunk)*f.layout.Stride
		if page.Base <= addr && addr < end {
			f.op()
			f.Chunks++
			return
		}
	}
}

func (f *Flash) op() {
	if f.busy > 0 || f.Stuck {
		f.Overruns++
	}
	f.busy = f.Busy
}
