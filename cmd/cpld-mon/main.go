// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command cpld-mon starts a TDAQ node publishing the registers of a board.
//
// Usage: cpld-mon [tdaq options] BOARD SERIAL
//
// Register dumps are published on the /regs output, every second, between
// the /start and /stop commands.
package main // import "github.com/go-lpc/cpld/cmd/cpld-mon"

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/cpld"
	"github.com/go-lpc/cpld/mon"
)

func main() {
	cmd := flags.New()

	var name, serial string
	switch len(cmd.Args) {
	case 0:
	case 2:
		name, serial = cmd.Args[0], cmd.Args[1]
	default:
		log.Fatalf("usage: cpld-mon [tdaq options] BOARD SERIAL")
	}

	dev := mon.New(name, serial, time.Second,
		cpld.WithLogger(log.New(os.Stdout, "cpld-mon: ", 0)),
	)

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/regs", dev.Regs)

	srv.RunHandle(dev.Run)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}
