// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/peterh/liner"
)

var shellCmds = []string{"dump", "help", "quit", "read", "write", "write-nv"}

type shell struct {
	w    io.Writer
	sess session
}

func runShell(w io.Writer, r io.Reader, sess session) error {
	sh := &shell{w: w, sess: sess}

	if f, ok := r.(*os.File); !ok || f != os.Stdin {
		// not a terminal: plain line processing.
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			quit := sh.exec(sc.Text())
			if quit {
				return nil
			}
		}
		return sc.Err()
	}

	term := liner.NewLiner()
	defer term.Close()

	term.SetCtrlCAborts(true)
	term.SetCompleter(sh.complete)

	prompt := strings.ToLower(sess.Profile().Name) + "> "
	for {
		line, err := term.Prompt(prompt)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, liner.ErrPromptAborted):
			fmt.Fprintln(w)
			return nil
		default:
			return fmt.Errorf("could not read command: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		term.AppendHistory(line)
		if sh.exec(line) {
			return nil
		}
	}
}

// exec runs a shell command and reports whether the shell should exit.
// Command failures are printed and do not end the session.
func (sh *shell) exec(line string) bool {
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return false
	}

	var err error
	prof := sh.sess.Profile()
	switch cmd, args := strings.ToLower(toks[0]), toks[1:]; cmd {
	case "quit", "exit", "q":
		return true
	case "help", "?":
		fmt.Fprint(sh.w, `commands:
  read REG...          print registers
  write REG VAL        write a register
  write-nv REG VAL     write a non-volatile register
  dump                 print all registers
  quit                 exit the shell
`)
	case "dump":
		err = dump(sh.w, sh.sess)
	case "read", "r":
		if len(args) == 0 {
			err = fmt.Errorf("read takes at least one register")
			break
		}
		err = read(sh.w, sh.sess, args)
	case "write", "w", "write-nv", "wnv":
		if len(args) != 2 {
			err = fmt.Errorf("%s takes one register and one value", cmd)
			break
		}
		var addr, v uint64
		addr, v, err = parsePair(prof, args[0], args[1])
		if err != nil {
			break
		}
		if cmd == "write-nv" || cmd == "wnv" {
			err = sh.sess.WriteNonVolatile(addr, v)
		} else {
			err = sh.sess.Write(addr, v)
		}
	default:
		err = fmt.Errorf("unknown command %q (try help)", toks[0])
	}

	if err != nil {
		fmt.Fprintf(sh.w, "error: %+v\n", err)
	}
	return false
}

// complete completes command names, then register names.
func (sh *shell) complete(line string) []string {
	toks := strings.Fields(line)
	if len(toks) == 0 || (len(toks) == 1 && !strings.HasSuffix(line, " ")) {
		prefix := ""
		if len(toks) == 1 {
			prefix = strings.ToLower(toks[0])
		}
		var out []string
		for _, cmd := range shellCmds {
			if strings.HasPrefix(cmd, prefix) {
				out = append(out, cmd+" ")
			}
		}
		return out
	}

	head := line
	prefix := ""
	if !strings.HasSuffix(line, " ") {
		prefix = toks[len(toks)-1]
		head = line[:len(line)-len(prefix)]
	}

	var out []string
	for _, reg := range sh.sess.Profile().Registers() {
		if strings.HasPrefix(reg.Name, strings.ToUpper(prefix)) {
			out = append(out, head+reg.Name+" ")
		}
	}
	sort.Strings(out)
	return out
}
