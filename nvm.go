// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpld

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-lpc/cpld/board"
)

// WriteNonVolatile writes v to the flash copy of the register at addr, and
// to the register itself when it has a live counterpart.
//
// The flash page holding the register is read back, erased, patched and
// written back chunk by chunk. Only the acknowledge status of the last
// chunk is reported: NAKs received earlier are logged.
func (sess *Session) WriteNonVolatile(addr, v uint64) error {
	reg, err := sess.lookup("write non-volatile", addr)
	if err != nil {
		return err
	}

	fl := sess.prof.Flash
	if fl == nil {
		return fmt.Errorf("cpld: could not write %s register %s: %w", sess.prof.Name, reg.Name, ErrUnsupportedForNonVolatile)
	}
	fd, ok := fl.Field(addr)
	if !ok {
		return fmt.Errorf("cpld: could not write %s register %s: %w", sess.prof.Name, reg.Name, ErrUnsupportedForNonVolatile)
	}
	if v&^reg.Mask() != 0 {
		return fmt.Errorf("cpld: value 0x%X overflows the %d byte(s) of register %s", v, reg.ValLen, reg.Name)
	}

	if fd.Live {
		err = sess.Write(addr, v)
		var perr *ProtocolError
		switch {
		case errors.As(err, &perr):
			sess.msg.Printf("live register %s not acknowledged: %+v", reg.Name, err)
		case err != nil:
			return fmt.Errorf("cpld: could not update live register %s: %w", reg.Name, err)
		}
	}

	var (
		alen  = reg.AddrLen
		ipage = fl.Page(addr)
		page  = fl.Pages[ipage]
		buf   = make([]byte, page.Size)
	)

	naks, err := sess.read(page.Base, buf)
	if err != nil {
		return fmt.Errorf("cpld: could not read flash page %d: %w", ipage, err)
	}
	if naks > 0 {
		sess.msg.Printf("flash page %d read-back: %d NAK(s)", ipage, naks)
	}

	naks, err = sess.bus.Write(page.Erase, alen, fl.Erase)
	if err != nil {
		return fmt.Errorf("cpld: could not erase flash page %d: %w", ipage, err)
	}
	if naks > 0 {
		sess.msg.Printf("flash page %d erase: %d NAK(s)", ipage, naks)
	}

	err = sess.waitFlash(fl)
	if err != nil {
		return fmt.Errorf("cpld: could not erase flash page %d: %w", ipage, err)
	}

	fl.Patch(buf, ipage, fd, encode(v, fd.Len))

	var (
		n    = page.Size / fl.Chunk
		last uint64
	)
	for i := 0; i < n; i++ {
		err = sess.waitFlash(fl)
		if err != nil {
			return fmt.Errorf("cpld: could not write flash page %d: %w", ipage, err)
		}

		last = page.Base + uint64(i)*fl.Stride
		naks, err = sess.bus.Write(last, alen, buf[i*fl.Chunk:(i+1)*fl.Chunk])
		if err != nil {
			return fmt.Errorf("cpld: could not write flash page %d: %w", ipage, err)
		}
		if naks > 0 && i+1 < n {
			sess.msg.Printf("flash chunk 0x%0*X: %d NAK(s)", 2*alen, last, naks)
		}
	}

	if fl.PollLast {
		err = sess.waitFlash(fl)
		if err != nil {
			return fmt.Errorf("cpld: could not write flash page %d: %w", ipage, err)
		}
	}

	if naks > 0 {
		return &ProtocolError{Op: "write", Addr: last, NAKs: naks}
	}
	return nil
}

// waitFlash polls the flash status until it reports the device ready.
func (sess *Session) waitFlash(fl *board.Flash) error {
	p := make([]byte, fl.StatusLen)
	for i := 0; i < sess.cfg.polls; i++ {
		_, err := sess.read(fl.Status, p)
		if err != nil {
			return fmt.Errorf("cpld: could not read flash status: %w", err)
		}
		if p[0] == fl.Ready {
			return nil
		}
		if sess.cfg.delay > 0 {
			time.Sleep(sess.cfg.delay)
		}
	}
	return fmt.Errorf("cpld: flash not ready after %d polls: %w", sess.cfg.polls, ErrTimedOut)
}
