// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command cpld-ctl reads and writes the registers of the CPLD of a
// development board, through its FTDI USB bridge.
//
// Usage: cpld-ctl [MODE] BOARD SERIAL [ARGS...]
//
// Example:
//
//	$> cpld-ctl -l
//	$> cpld-ctl -r V3U FT4ZX2KP
//	$> cpld-ctl -r V3U FT4ZX2KP 0x0008 0x0025
//	$> cpld-ctl -w V3U FT4ZX2KP 0x0024 0x01 0x0036 0x02
//	$> cpld-ctl -wnv V3MSK FT5A6B7C 0x00B 0x8001
//	$> cpld-ctl -i V3MSK FT5A6B7C
//
// Registers and values are hexadecimal numbers. Registers may also be
// named.
package main // import "github.com/go-lpc/cpld/cmd/cpld-ctl"

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/go-lpc/cpld"
	"github.com/go-lpc/cpld/bitbang"
	"github.com/go-lpc/cpld/board"
)

// session is the part of *cpld.Session used by cpld-ctl.
type session interface {
	Read(addr uint64) (uint64, error)
	Write(addr, v uint64) error
	WriteNonVolatile(addr, v uint64) error
	Dump() ([]cpld.Entry, error)
	Profile() *board.Profile
	Close() error
}

var (
	openSession = func(name, serial string) (session, error) {
		return cpld.Open(name, serial)
	}
	listDevices = bitbang.List
)

const (
	modeList    = "list"
	modeRead    = "read"
	modeWrite   = "write"
	modeWriteNV = "write-nv"
	modeShell   = "shell"
)

func main() {
	log.SetPrefix("cpld-ctl: ")
	log.SetFlags(0)

	var (
		doList    = flag.Bool("l", false, "list available devices")
		doRead    = flag.Bool("r", false, "print CPLD registers (all of them when none is given)")
		doWrite   = flag.Bool("w", false, "write CPLD register(s)")
		doWriteNV = flag.Bool("wnv", false, "write non-volatile CPLD register(s)")
		doShell   = flag.Bool("i", false, "run an interactive shell")
		doVersion = flag.Bool("version", false, "print version and exit")
	)

	flag.Usage = func() {
		fmt.Printf(`cpld-ctl reads and writes the registers of the CPLD of a development board.

Valid boards: %s

Usage:
  cpld-ctl -l                               list available devices
  cpld-ctl -r   BOARD SERIAL [REG...]       print CPLD registers
  cpld-ctl -w   BOARD SERIAL [REG VAL]...   write CPLD register(s)
  cpld-ctl -wnv BOARD SERIAL [REG VAL]...   write non-volatile CPLD register(s)
  cpld-ctl -i   BOARD SERIAL                run an interactive shell

Options:
`, strings.Join(board.Names(), ", "))
		flag.PrintDefaults()
	}

	flag.Parse()

	if *doVersion {
		version, sum := cpld.Version()
		fmt.Printf("cpld-ctl %s %s\n", version, sum)
		return
	}

	mode, err := modeFrom(*doList, *doRead, *doWrite, *doWriteNV, *doShell)
	if err != nil {
		flag.Usage()
		log.Fatalf("%+v", err)
	}

	err = run(os.Stdout, os.Stdin, mode, flag.Args())
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func modeFrom(list, read, write, writeNV, shell bool) (string, error) {
	var modes []string
	for _, v := range []struct {
		ok   bool
		mode string
	}{
		{list, modeList},
		{read, modeRead},
		{write, modeWrite},
		{writeNV, modeWriteNV},
		{shell, modeShell},
	} {
		if v.ok {
			modes = append(modes, v.mode)
		}
	}
	switch len(modes) {
	case 0:
		return "", fmt.Errorf("missing mode (-l, -r, -w, -wnv or -i)")
	case 1:
		return modes[0], nil
	default:
		return "", fmt.Errorf("conflicting modes: %s", strings.Join(modes, ", "))
	}
}

func run(w io.Writer, r io.Reader, mode string, args []string) error {
	if mode == modeList {
		if len(args) != 0 {
			return fmt.Errorf("the -l option takes no arguments")
		}
		return list(w)
	}

	if len(args) < 2 {
		return fmt.Errorf("missing board name and serial number")
	}
	switch mode {
	case modeWrite, modeWriteNV:
		if len(args) < 4 || len(args)%2 != 0 {
			return fmt.Errorf("%s takes one board name, one serial number and at least one register/value pair", mode)
		}
	case modeShell:
		if len(args) != 2 {
			return fmt.Errorf("the -i option takes one board name and one serial number")
		}
	}

	name, serial := args[0], args[1]
	sess, err := openSession(name, serial)
	if err != nil {
		return fmt.Errorf("could not initialize %s board: %w", name, err)
	}
	defer sess.Close()

	fmt.Fprintf(w, "Using device %s with iSerial: %s\n\n", sess.Profile().Name, serial)

	args = args[2:]
	switch mode {
	case modeRead:
		if len(args) == 0 {
			return dump(w, sess)
		}
		return read(w, sess, args)
	case modeWrite:
		return write(w, sess, args, sess.Write)
	case modeWriteNV:
		return write(w, sess, args, sess.WriteNonVolatile)
	case modeShell:
		return runShell(w, r, sess)
	}
	return fmt.Errorf("unknown mode %q", mode)
}

func list(w io.Writer) error {
	devs, err := listDevices()
	if err != nil {
		return fmt.Errorf("could not list devices: %w", err)
	}
	for _, dev := range devs {
		fmt.Fprintf(w, "%s: %s\n", bitbang.ProductName(dev.ProductID), dev.Serial)
	}
	return nil
}

func dump(w io.Writer, sess session) error {
	regs, err := sess.Dump()
	for _, reg := range regs {
		fmt.Fprintln(w, reg)
	}
	if err != nil {
		return fmt.Errorf("could not dump registers: %w", err)
	}
	return nil
}

// read prints the provided registers. All registers are read, even after
// a failure.
func read(w io.Writer, sess session, args []string) error {
	var nerr int
	for _, arg := range args {
		addr, err := parseReg(sess.Profile(), arg)
		if err != nil {
			log.Printf("%+v", err)
			nerr++
			continue
		}
		v, err := sess.Read(addr)
		if err != nil {
			log.Printf("%+v", err)
			nerr++
			continue
		}
		reg, _ := sess.Profile().Lookup(addr)
		fmt.Fprintln(w, reg.Format(v))
	}
	if nerr > 0 {
		return fmt.Errorf("could not read %d register(s)", nerr)
	}
	return nil
}

// write writes the provided register/value pairs and dumps the registers.
// Every pair is written, but only the status of the last write is
// reported.
func write(w io.Writer, sess session, args []string, op func(addr, v uint64) error) error {
	var last error
	for i := 0; i < len(args); i += 2 {
		addr, v, err := parsePair(sess.Profile(), args[i], args[i+1])
		if err != nil {
			log.Printf("%+v", err)
			continue
		}
		last = op(addr, v)
		if last != nil {
			log.Printf("could not write register 0x%X: %+v", addr, last)
		}
	}

	err := dump(w, sess)
	switch {
	case last != nil:
		return fmt.Errorf("could not write registers: %w", last)
	case err != nil:
		return err
	}
	return nil
}

func parsePair(prof *board.Profile, reg, val string) (uint64, uint64, error) {
	addr, err := parseReg(prof, reg)
	if err != nil {
		return 0, 0, err
	}
	v, err := parseHex(val)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid value %q for register %s: %w", val, reg, err)
	}
	return addr, v, nil
}

// parseReg returns the address of the register named or addressed by s.
func parseReg(prof *board.Profile, s string) (uint64, error) {
	if reg, ok := prof.ByName(s); ok {
		return reg.Addr, nil
	}
	addr, err := parseHex(s)
	if err != nil {
		return 0, fmt.Errorf("invalid register %q: %w", s, err)
	}
	return addr, nil
}

var errEmpty = errors.New("empty hexadecimal number")

func parseHex(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return 0, errEmpty
	}
	return strconv.ParseUint(s, 16, 64)
}
