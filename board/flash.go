// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

// Flash describes the non-volatile storage of a board.
//
// The storage is made of two pages. A page is updated by reading back its
// populated prefix, erasing it, patching the prefix and writing it back
// in chunks, waiting for the device to be ready before each chunk.
type Flash struct {
	Split uint64  // registers below Split are stored in page 0
	Pages [2]Page // flash pages

	Status    uint64 // address of the ready status
	StatusLen int    // length of the status, in bytes
	Ready     byte   // value of the status when the device is ready

	Erase    []byte // token written to Page.Erase to erase a page
	Chunk    int    // length of a write-back chunk, in bytes
	Stride   uint64 // address increment between two chunks
	PollLast bool   // wait for the device after the last chunk

	Fields []Field // registers with a non-volatile copy
}

// Page describes a flash page.
type Page struct {
	Base   uint64 // address of the first chunk
	Size   int    // length of the populated prefix, in bytes
	Erase  uint64 // address receiving the erase token
	Invert bool   // bytes are stored inverted
}

// Field locates the non-volatile copy of a register inside its page.
type Field struct {
	Addr   uint64 // address of the register
	Offset int    // offset of the first byte inside the page
	Len    int    // number of bytes stored
	Live   bool   // the register also has a live counterpart
	Xor    []byte // bits forced after inversion
}

// Field returns the flash field of the register at addr.
func (f *Flash) Field(addr uint64) (Field, bool) {
	for _, v := range f.Fields {
		if v.Addr == addr {
			return v, true
		}
	}
	return Field{}, false
}

// Page returns the index of the page holding the register at addr.
func (f *Flash) Page(addr uint64) int {
	if addr < f.Split {
		return 0
	}
	return 1
}

// Patch stores the value bytes v (least significant first) of field fd
// into the page buffer.
func (f *Flash) Patch(page []byte, ipage int, fd Field, v []byte) {
	inv := f.Pages[ipage].Invert
	for i := 0; i < fd.Len && i < len(v); i++ {
		b := v[i]
		if inv {
			b ^= 0xFF
		}
		if i < len(fd.Xor) {
			b ^= fd.Xor[i]
		}
		page[fd.Offset+i] = b
	}
}

// i2cFlash returns the flash layout shared by the I2C boards.
func i2cFlash(fields ...Field) *Flash {
	return &Flash{
		Split: 0x07FF,
		Pages: [2]Page{
			{Base: 0x0800, Size: 60, Erase: 0x07F0},
			{Base: 0x1000, Size: 16, Erase: 0x07F1},
		},
		Status:    0x07F0,
		StatusLen: 1,
		Ready:     0x01,
		Erase:     []byte{0x01},
		Chunk:     4,
		Stride:    4,
		Fields:    fields,
	}
}

// smiFlash returns the flash layout of the SMI boards.
// Page 0 is stored inverted.
func smiFlash(fields ...Field) *Flash {
	return &Flash{
		Split: 0x2FF,
		Pages: [2]Page{
			{Base: 0x200, Size: 30, Erase: 0x1FE, Invert: true},
			{Base: 0x300, Size: 8, Erase: 0x1FF},
		},
		Status:    0x009,
		StatusLen: 2,
		Ready:     0x01,
		Erase:     []byte{0x00, 0x00},
		Chunk:     2,
		Stride:    1,
		PollLast:  true,
		Fields:    fields,
	}
}
