// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"os"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-lpc/cpld"
)

type dump struct {
	regs []cpld.Entry
	err  error
}

type fakeSession struct {
	mu     sync.Mutex
	dumps  []dump
	n      int
	closed bool
}

func (sess *fakeSession) Dump() ([]cpld.Entry, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	i := sess.n
	if i >= len(sess.dumps) {
		i = len(sess.dumps) - 1
	}
	sess.n++
	return sess.dumps[i].regs, sess.dumps[i].err
}

func (sess *fakeSession) Close() error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.closed = true
	return nil
}

func regs(kvs ...interface{}) []cpld.Entry {
	var out []cpld.Entry
	for i := 0; i < len(kvs); i += 2 {
		out = append(out, cpld.Entry{Name: kvs[i].(string), Value: uint64(kvs[i+1].(int))})
	}
	return out
}

func TestPoll(t *testing.T) {
	sess := &fakeSession{
		dumps: []dump{
			{regs: regs("MODE", 1, "MUX", 2)},
			{regs: regs("MODE", 1, "MUX", 2)},
			{regs: regs("MODE", 3, "MUX", 4)},
			{err: errors.New("bus: timed out")},
			{regs: regs("MODE", 3, "MUX", 5)},
		},
	}

	var subjects []string
	w := newWatcher("H3SK", sess, time.Second)
	w.send = func(subject, body string) error {
		subjects = append(subjects, subject)
		return nil
	}

	var table map[string]uint64
	for range sess.dumps {
		table = w.poll(table)
	}

	want := []string{
		"[cpld-watch] H3SK alert: MODE",
		"[cpld-watch] H3SK alert: MUX",
		"[cpld-watch] H3SK alert: dump",
		"[cpld-watch] H3SK alert: MUX",
	}
	if !reflect.DeepEqual(subjects, want) {
		t.Fatalf("invalid alerts:\ngot= %q\nwant=%q", subjects, want)
	}
	if got, want := table, map[string]uint64{"MODE": 3, "MUX": 5}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid reference table: got=%v, want=%v", got, want)
	}
}

func TestMaxAlerts(t *testing.T) {
	sess := &fakeSession{
		dumps: []dump{{err: errors.New("bus: timed out")}},
	}

	n := 0
	w := newWatcher("V3U", sess, time.Second)
	w.send = func(subject, body string) error {
		n++
		if !strings.Contains(body, "could not dump registers: bus: timed out") {
			t.Errorf("invalid mail body: %q", body)
		}
		return errors.New("no mail server")
	}

	for i := 0; i < 10; i++ {
		_ = w.poll(nil)
	}
	if got, want := n, 4; got != want {
		t.Fatalf("invalid number of mails: got=%d, want=%d", got, want)
	}
	if got, want := w.alerts["dump"], 10; got != want {
		t.Fatalf("invalid number of alerts: got=%d, want=%d", got, want)
	}
}

func TestAlertMail(t *testing.T) {
	usr := alertMailUsr
	defer func() { alertMailUsr = usr }()

	alertMailUsr = ""
	err := alertMail("subject", "body")
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestSplit(t *testing.T) {
	for _, tc := range []struct {
		s    string
		want []string
	}{
		{"", nil},
		{"a@lpc.fr", []string{"a@lpc.fr"}},
		{"a@lpc.fr, b@lpc.fr,,", []string{"a@lpc.fr", "b@lpc.fr"}},
	} {
		if got := split(tc.s); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("invalid split(%q): got=%q, want=%q", tc.s, got, tc.want)
		}
	}
}

func TestRun(t *testing.T) {
	orig := openSession
	defer func() { openSession = orig }()

	sess := &fakeSession{
		dumps: []dump{{regs: regs("MODE", 1)}},
	}
	openSession = func(name, serial string) (session, error) {
		if name != "M3SK" {
			return nil, errors.New("no such board")
		}
		return sess, nil
	}

	stop := make(chan os.Signal, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- run("M3SK", "A50285BI", time.Millisecond, stop)
	}()

	time.Sleep(20 * time.Millisecond)
	stop <- os.Interrupt

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("could not run: %+v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watcher did not stop")
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.closed {
		t.Fatalf("session not closed")
	}

	err := run("V4", "A50285BI", time.Millisecond, make(chan os.Signal, 1))
	if err == nil {
		t.Fatalf("expected an error")
	}
}
