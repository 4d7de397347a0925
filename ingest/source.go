// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ingest

import (
	"errors"
	"time"
)

// ErrTimeout reports that a PacketSource wait expired without a filled
// input block. It is always retryable.
var ErrTimeout = errors.New("ingest: timeout")

// PacketSource is the capture side of the pipeline: a ring of input
// blocks, each holding a fixed number of slot-aligned frames. Any
// implementation that yields fixed-size frames can stand in for the
// kernel packet-socket or verbs-based ingest.
type PacketSource interface {
	// NumBlocks returns the capacity of the input ring.
	NumBlocks() int
	// SlotsPerBlock returns the number of frame slots per input block.
	SlotsPerBlock() int
	// WaitFilled waits until input block i has been filled, or returns
	// ErrTimeout.
	WaitFilled(i int, timeout time.Duration) error
	// SetFree releases input block i back to the source.
	SetFree(i int)
	// Frame returns the frame in the given slot of input block i, or
	// nil when the slot carries no datagram.
	Frame(i, slot int) []byte
}
