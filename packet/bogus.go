// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"sync/atomic"
	"time"
)

// BogusCounter tracks NBOGUS and rate-limits how often a caller should log
// about it. The counter itself is never rate-limited, only the reporting.
type BogusCounter struct {
	total    atomic.Uint64
	lastLog  atomic.Int64 // unix nanoseconds of the last permitted log line
	interval time.Duration
}

// NewBogusCounter returns a counter that permits at most one log line per
// interval; interval <= 0 disables rate-limiting.
func NewBogusCounter(interval time.Duration) *BogusCounter {
	return &BogusCounter{interval: interval}
}

// Count increments the total and reports whether the caller should emit a
// log line for this occurrence.
func (c *BogusCounter) Count(now time.Time) (total uint64, shouldLog bool) {
	total = c.total.Add(1)
	if c.interval <= 0 {
		return total, true
	}

	nowNS := now.UnixNano()
	last := c.lastLog.Load()
	if nowNS-last < c.interval.Nanoseconds() {
		return total, false
	}
	return total, c.lastLog.CompareAndSwap(last, nowNS)
}

// Total returns NBOGUS as accumulated so far.
func (c *BogusCounter) Total() uint64 { return c.total.Load() }
