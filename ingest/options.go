// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ingest

import (
	"log"
	"os"
	"time"
)

type config struct {
	msg           *log.Logger
	waitTimeout   time.Duration
	bogusLogEvery time.Duration
	legacy        bool
	bindPort      uint16
	dwell         float64
}

func newConfig() config {
	return config{
		msg:           log.New(os.Stdout, "ingest: ", 0),
		waitTimeout:   50 * time.Millisecond,
		bogusLogEvery: 10 * time.Second,
		bindPort:      4015,
		dwell:         300,
	}
}

// Option configures an ingest Loop.
type Option func(*config)

// WithLogger sets the loop's logger.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) { cfg.msg = msg }
}

// WithWaitTimeout sets how long one input-ring wait may block before
// the loop runs its housekeeping and retries.
func WithWaitTimeout(d time.Duration) Option {
	return func(cfg *config) { cfg.waitTimeout = d }
}

// WithLegacyPktIdx masks the top 8 bits of every pktidx, for F-engines
// that carry an auxiliary channel tag there.
func WithLegacyPktIdx(legacy bool) Option {
	return func(cfg *config) { cfg.legacy = legacy }
}

// WithBindPort sets the default BINDPORT published at startup.
func WithBindPort(port uint16) Option {
	return func(cfg *config) { cfg.bindPort = port }
}

// WithDwell sets the default recording duration in seconds, used when
// the status buffer carries no DWELL.
func WithDwell(secs float64) Option {
	return func(cfg *config) { cfg.dwell = secs }
}
