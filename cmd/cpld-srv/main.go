// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command cpld-srv serves the registers of a board over TCP.
//
// Requests and replies are JSON values:
//
//	{"name": "read", "args": {"addr": 37}}
//	{"name": "write", "args": {"addr": 37, "value": 1}}
//	{"name": "write-nv", "args": {"addr": 37, "value": 1}}
//	{"name": "dump"}
//	{"name": "quit"}
package main // import "github.com/go-lpc/cpld/cmd/cpld-srv"

import (
	"flag"
	"log"

	"github.com/go-lpc/cpld"
)

func main() {
	var (
		addr = flag.String("addr", ":8877", "cpld-srv [addr]:port")
	)

	log.SetPrefix("cpld-srv: ")
	log.SetFlags(0)

	flag.Usage = func() {
		log.Printf("usage: cpld-srv [-addr :8877] BOARD SERIAL")
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		log.Fatalf("missing board name and serial number")
	}

	err := cpld.Serve(*addr, flag.Arg(0), flag.Arg(1))
	if err != nil {
		log.Fatalf("could not create cpld-srv service: %+v", err)
	}
}
