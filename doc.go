// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cpld gives access to the registers of the CPLD mounted on
// development boards, through a bit-banged FTDI USB bridge.
//
// A Session selects a board profile, opens the bridge and runs the
// protocol engine of that board (SPI, I2C or SMI). Registers are addressed
// by their bus address and exchanged as unsigned integers. Some boards also
// keep a copy of selected registers in flash, updated with
// Session.WriteNonVolatile.
package cpld // import "github.com/go-lpc/cpld"

import (
	"fmt"
	"runtime/debug"
)

// Version returns the version of cpld and its checksum.
// The returned values are only valid in binaries built with module support.
func Version() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	return versionOf(b)
}

func versionOf(b *debug.BuildInfo) (version, sum string) {
	if b == nil {
		return "", ""
	}

	const root = "github.com/go-lpc/cpld"
	if b.Main.Path == root {
		return b.Main.Version, b.Main.Sum
	}
	for _, m := range b.Deps {
		if m.Path != root {
			continue
		}
		if m.Replace != nil {
			switch {
			case m.Replace.Version != "" && m.Replace.Path != "":
				return fmt.Sprintf("%s %s", m.Replace.Path, m.Replace.Version), m.Replace.Sum
			case m.Replace.Version != "":
				return m.Replace.Version, m.Replace.Sum
			default:
				return m.Replace.Path, m.Replace.Sum
			}
		}
		return m.Version, m.Sum
	}
	return "", ""
}
