// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpld

import (
	"log"
	"os"
	"time"

	"github.com/go-lpc/cpld/bitbang"
	"github.com/go-lpc/cpld/bus"
)

// DefaultPollLimit is the default number of flash status polls before
// giving up on a non-volatile write.
const DefaultPollLimit = 10000

type config struct {
	msg     *log.Logger
	settle  time.Duration
	stretch int
	polls   int
	delay   time.Duration
}

func newConfig() config {
	return config{
		msg:     log.New(os.Stdout, "cpld: ", 0),
		settle:  bitbang.Settle,
		stretch: bus.DefaultStretch,
		polls:   DefaultPollLimit,
	}
}

// Option configures a Session.
type Option func(*config)

// WithLogger sets the logger of the session.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithSettle sets the delay applied after each frame written to the
// bridge.
func WithSettle(d time.Duration) Option {
	return func(cfg *config) {
		cfg.settle = d
	}
}

// WithStretchLimit sets the maximum number of polls of a stretched I2C
// clock.
func WithStretchLimit(n int) Option {
	return func(cfg *config) {
		cfg.stretch = n
	}
}

// WithPollLimit sets the maximum number of flash status polls.
func WithPollLimit(n int) Option {
	return func(cfg *config) {
		cfg.polls = n
	}
}

// WithPollDelay sets the delay between two flash status polls.
func WithPollDelay(d time.Duration) Option {
	return func(cfg *config) {
		cfg.delay = d
	}
}
