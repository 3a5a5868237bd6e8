// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpld

import (
	"errors"

	"github.com/go-lpc/cpld/bitbang"
	"github.com/go-lpc/cpld/bus"
)

var (
	// ErrUnsupportedAddress is returned for addresses missing from the
	// register directory of the board.
	ErrUnsupportedAddress = errors.New("unsupported address")

	// ErrAccessDenied is returned when reading a write-only register or
	// writing a read-only one.
	ErrAccessDenied = errors.New("access denied")

	// ErrUnsupportedForNonVolatile is returned when a register has no
	// non-volatile copy.
	ErrUnsupportedForNonVolatile = errors.New("non-volatile write only supported on V3MSK, V3HSK, V3U and S4 boards, for a subset of their registers")

	// ErrTimedOut is returned when the device does not become ready
	// within the configured number of polls.
	ErrTimedOut = bus.ErrTimedOut
)

type (
	// TransportError reports a failure of the USB bridge.
	TransportError = bitbang.TransportError

	// ProtocolError reports a transaction not acknowledged by the CPLD.
	ProtocolError = bus.ProtocolError
)
