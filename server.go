// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpld

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
)

// server exposes the registers of a board over a JSON/TCP connection.
type server struct {
	ctl net.Listener
	msg *log.Logger

	board  string
	serial string
	opts   []Option

	open func(board, serial string, opts ...Option) (*Session, error)
}

// Serve listens on addr and serves the registers of the named board.
//
// Each connection opens its own session on the board and handles a
// stream of JSON requests:
//
//	{"name": "read",     "args": {"addr": 8}}
//	{"name": "write",    "args": {"addr": 8, "value": 3}}
//	{"name": "write-nv", "args": {"addr": 8, "value": 3}}
//	{"name": "dump"}
//	{"name": "quit"}
//
// Each request is answered with {"msg": "ok"} or {"msg": <error>}, along
// with the value of the register or the dump of the board.
func Serve(addr, board, serial string, opts ...Option) error {
	srv, err := newServer(addr, board, serial, opts...)
	if err != nil {
		return fmt.Errorf("cpld: could not create server: %w", err)
	}
	return srv.serve()
}

func newServer(addr, board, serial string, opts ...Option) (*server, error) {
	ctl, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("cpld: could not listen on %q: %w", addr, err)
	}

	srv := &server{
		ctl:    ctl,
		msg:    log.New(os.Stdout, "cpld-srv: ", 0),
		board:  board,
		serial: serial,
		opts:   opts,
		open:   Open,
	}
	return srv, nil
}

func (srv *server) serve() error {
	defer srv.close()

	for {
		conn, err := srv.ctl.Accept()
		if err != nil {
			return fmt.Errorf("cpld: could not accept connection: %w", err)
		}

		err = srv.handle(conn)
		if err != nil {
			srv.msg.Printf("could not serve %s board: %+v", srv.board, err)
			continue
		}
	}
}

type request struct {
	Name string           `json:"name"`
	Args *json.RawMessage `json:"args"`
}

type regArgs struct {
	Addr  uint64 `json:"addr"`
	Value uint64 `json:"value"`
}

type reply struct {
	Msg   string  `json:"msg"`
	Value *uint64 `json:"value,omitempty"`
	Regs  []Entry `json:"regs,omitempty"`
}

func (srv *server) handle(conn net.Conn) error {
	defer conn.Close()
	srv.msg.Printf("serving %v...", conn.RemoteAddr())
	defer srv.msg.Printf("serving %v... [done]", conn.RemoteAddr())

	sess, err := srv.open(srv.board, srv.serial, srv.opts...)
	if err != nil {
		srv.reply(conn, reply{}, err)
		return fmt.Errorf("could not open session: %w", err)
	}
	defer sess.Close()

	dec := json.NewDecoder(conn)
	for {
		var req request
		err = dec.Decode(&req)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			srv.msg.Printf("could not decode request: %+v", err)
			srv.reply(conn, reply{}, err)
			return fmt.Errorf("could not decode request: %w", err)
		}
		srv.msg.Printf("received request: name=%q", req.Name)

		switch strings.ToLower(req.Name) {
		case "read":
			args, err := srv.args(req)
			if err != nil {
				srv.reply(conn, reply{}, err)
				continue
			}
			v, err := sess.Read(args.Addr)
			srv.reply(conn, reply{Value: &v}, err)

		case "write":
			args, err := srv.args(req)
			if err != nil {
				srv.reply(conn, reply{}, err)
				continue
			}
			err = sess.Write(args.Addr, args.Value)
			srv.reply(conn, reply{}, err)

		case "write-nv":
			args, err := srv.args(req)
			if err != nil {
				srv.reply(conn, reply{}, err)
				continue
			}
			err = sess.WriteNonVolatile(args.Addr, args.Value)
			srv.reply(conn, reply{}, err)

		case "dump":
			regs, err := sess.Dump()
			srv.reply(conn, reply{Regs: regs}, err)

		case "quit":
			srv.reply(conn, reply{}, nil)
			return nil

		default:
			srv.msg.Printf("unknown command name=%q", req.Name)
			srv.reply(conn, reply{}, fmt.Errorf("unknown command %q", req.Name))
		}
	}
}

func (srv *server) args(req request) (regArgs, error) {
	var args regArgs
	if req.Args == nil {
		return args, fmt.Errorf("missing %q arguments", req.Name)
	}
	err := json.Unmarshal(*req.Args, &args)
	if err != nil {
		srv.msg.Printf("could not decode %q payload: %+v", req.Name, err)
		return args, fmt.Errorf("could not decode %q arguments: %w", req.Name, err)
	}
	return args, nil
}

func (srv *server) reply(conn net.Conn, rep reply, err error) {
	rep.Msg = "ok"
	if err != nil {
		rep.Msg = fmt.Sprintf("%+v", err)
		srv.msg.Printf("request failed: %+v", err)
	}
	_ = json.NewEncoder(conn).Encode(rep)
}

func (srv *server) close() {
	_ = srv.ctl.Close()
}
