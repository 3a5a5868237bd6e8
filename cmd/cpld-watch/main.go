// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command cpld-watch periodically dumps the registers of a board and sends
// mail alerts when a dump fails or when a register changes.
//
// Mail alerts are configured with the MAIL_USERNAME, MAIL_PASSWORD,
// MAIL_SERVER, MAIL_PORT and MAIL_TGTS (comma separated) environment
// variables.
//
// Usage: cpld-watch [-freq 30s] BOARD SERIAL
package main // import "github.com/go-lpc/cpld/cmd/cpld-watch"

import (
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-lpc/cpld"
	"golang.org/x/sync/errgroup"
	mail "gopkg.in/gomail.v2"
)

type session interface {
	Dump() ([]cpld.Entry, error)
	Close() error
}

var (
	openSession = func(name, serial string) (session, error) {
		return cpld.Open(name, serial)
	}

	stop = make(chan os.Signal, 1)
)

func main() {
	var (
		freq = flag.Duration("freq", 30*time.Second, "polling interval")
	)

	flag.Parse()

	log.SetPrefix("cpld-watch: ")
	log.SetFlags(0)

	if flag.NArg() != 2 {
		flag.Usage()
		log.Fatalf("missing board name and serial number")
	}

	err := run(flag.Arg(0), flag.Arg(1), *freq, stop)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(name, serial string, freq time.Duration, stop chan os.Signal) error {
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	sess, err := openSession(name, serial)
	if err != nil {
		return fmt.Errorf("could not open board %s: %w", name, err)
	}
	defer sess.Close()

	var (
		grp  errgroup.Group
		quit = make(chan int)
		w    = newWatcher(name, sess, freq)
	)

	grp.Go(func() error {
		return w.monitor(quit)
	})

	go func() {
		<-stop
		close(quit)
	}()

	err = grp.Wait()
	if err != nil {
		return fmt.Errorf("could not watch board %s: %w", name, err)
	}
	return nil
}

type watcher struct {
	board string
	sess  session
	freq  time.Duration

	alerts map[string]int // keep track of the number of alerts per register
	send   func(subject, body string) error
}

func newWatcher(board string, sess session, freq time.Duration) *watcher {
	return &watcher{
		board:  board,
		sess:   sess,
		freq:   freq,
		alerts: make(map[string]int),
		send:   alertMail,
	}
}

func (w *watcher) monitor(quit chan int) error {
	var (
		tick  = time.NewTicker(w.freq)
		table map[string]uint64
	)
	defer tick.Stop()

	for {
		select {
		case <-quit:
			return nil
		case <-tick.C:
			table = w.poll(table)
		}
	}
}

// poll dumps the registers, compares them with the reference table and
// returns the new reference.
func (w *watcher) poll(ref map[string]uint64) map[string]uint64 {
	regs, err := w.sess.Dump()
	if err != nil {
		w.alert("dump", fmt.Sprintf("could not dump registers: %+v", err))
		return ref
	}

	cur := make(map[string]uint64, len(regs))
	for _, reg := range regs {
		cur[reg.Name] = reg.Value
	}
	w.compare(ref, cur)
	return cur
}

func (w *watcher) compare(ref, chk map[string]uint64) {
	if ref == nil {
		return
	}
	names := make([]string, 0, len(chk))
	for name := range chk {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		old, ok := ref[name]
		if !ok {
			continue
		}
		if v := chk[name]; v != old {
			w.alert(name, fmt.Sprintf("register %s changed from 0x%X to 0x%X", name, old, v))
		}
	}
}

func (w *watcher) alert(key, msg string) {
	log.Printf("board %s: %s", w.board, msg)
	w.alerts[key]++

	const maxAlerts = 5
	if w.alerts[key] < maxAlerts {
		subject := fmt.Sprintf("[cpld-watch] %s alert: %s", w.board, key)
		body := fmt.Sprintf("board: %s\n%s\nfreq: %v", w.board, msg, w.freq)
		err := w.send(subject, body)
		if err != nil {
			log.Printf("could not send mail alert: %+v", err)
		}
	}
}

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = split(os.Getenv("MAIL_TGTS"))
)

func alertMail(subject, body string) error {
	if alertMailUsr == "" || alertMailPwd == "" ||
		alertMailSrv == "" || alertMailPort == 0 ||
		len(alertMailTgts) == 0 {
		return fmt.Errorf("missing credentials")
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", alertMailUsr)
	msg.SetHeader("Bcc", alertMailTgts...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	return dial.DialAndSend(msg)
}

func split(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
