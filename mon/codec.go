// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mon

import (
	"bytes"
	"fmt"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/cpld"
)

// Encode encodes a register dump into the body of a /regs frame.
func Encode(regs []cpld.Entry) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := tdaq.NewEncoder(buf)
	enc.WriteU32(uint32(len(regs)))
	for _, reg := range regs {
		enc.WriteStr(reg.Name)
		enc.WriteU64(reg.Addr)
		enc.WriteU8(uint8(reg.AddrLen))
		enc.WriteU8(uint8(reg.ValLen))
		enc.WriteU64(reg.Value)
	}
	if err := enc.Err(); err != nil {
		return nil, fmt.Errorf("mon: could not encode registers: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode decodes the body of a /regs frame.
func Decode(p []byte) ([]cpld.Entry, error) {
	dec := tdaq.NewDecoder(bytes.NewReader(p))
	n := int(dec.ReadU32())
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("mon: could not decode number of registers: %w", err)
	}

	regs := make([]cpld.Entry, 0, n)
	for i := 0; i < n; i++ {
		var reg cpld.Entry
		reg.Name = dec.ReadStr()
		reg.Addr = dec.ReadU64()
		reg.AddrLen = int(dec.ReadU8())
		reg.ValLen = int(dec.ReadU8())
		reg.Value = dec.ReadU64()
		if err := dec.Err(); err != nil {
			return nil, fmt.Errorf("mon: could not decode register %d: %w", i, err)
		}
		regs = append(regs, reg)
	}
	return regs, nil
}
