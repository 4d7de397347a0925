// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package block implements the raw voltage blocks shared between the
// ingest loop and its downstream consumer: a fixed-capacity ring of
// mmap'd blocks, a strided scatter view over a block's data area, and
// the key/value cards of a block's header region.
package block // import "github.com/go-lpc/voltage-ingest/block"

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/go-lpc/voltage-ingest/internal/mmap"
	"github.com/go-lpc/voltage-ingest/statusbuf"
)

// ErrTimeout reports that a ring wait expired before the slot reached
// the requested state. It is always retryable.
var ErrTimeout = errors.New("block: timeout")

// HeaderSize is the size in bytes of a block's header region.
const HeaderSize = statusbuf.TotalSize

// Slot states.
const (
	slotFree int32 = iota
	slotProcessing
	slotFilled
)

const waitQuantum = 1 * time.Millisecond

// Ring is a fixed-capacity ring of raw blocks backed by shared memory.
// The ingest side acquires free slots, fills them and marks them filled;
// the consumer side waits for filled slots and marks them free again.
// Per-slot state is published with atomic stores so neither side takes a
// lock to observe it.
type Ring struct {
	n        int
	dataSize int

	hdl   *mmap.Handle
	buf   []byte
	state []atomic.Int32
}

// NewRing maps a ring of n blocks, each with a HeaderSize header region
// and dataSize bytes of data. All slots start out free.
func NewRing(n, dataSize int) (*Ring, error) {
	if n < 1 {
		return nil, fmt.Errorf("block: invalid ring capacity %d", n)
	}
	if dataSize < 1 {
		return nil, fmt.Errorf("block: invalid block data size %d", dataSize)
	}

	size := n * (HeaderSize + dataSize)
	buf, err := unix.Mmap(
		-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|unix.MAP_ANONYMOUS,
	)
	if err != nil {
		return nil, fmt.Errorf("block: could not mmap %d bytes: %w", size, err)
	}

	return &Ring{
		n:        n,
		dataSize: dataSize,
		hdl:      mmap.HandleFrom(buf),
		buf:      buf,
		state:    make([]atomic.Int32, n),
	}, nil
}

// Close unmaps the ring's memory.
func (r *Ring) Close() error {
	r.buf = nil
	return r.hdl.Close()
}

// NumBlocks returns the capacity of the ring.
func (r *Ring) NumBlocks() int { return r.n }

// DataSize returns the size in bytes of one block's data area.
func (r *Ring) DataSize() int { return r.dataSize }

// Header returns the header region of block i.
func (r *Ring) Header(i int) []byte {
	off := i * (HeaderSize + r.dataSize)
	return r.buf[off : off+HeaderSize]
}

// Data returns the data area of block i.
func (r *Ring) Data(i int) []byte {
	off := i*(HeaderSize+r.dataSize) + HeaderSize
	return r.buf[off : off+r.dataSize]
}

// NumFilled returns the number of slots currently not free, for
// NETBUFST-style "used/total" reporting.
func (r *Ring) NumFilled() int {
	n := 0
	for i := range r.state {
		if r.state[i].Load() != slotFree {
			n++
		}
	}
	return n
}

// WaitFree waits until slot i is free and claims it for filling. It
// returns ErrTimeout when the slot did not come free within timeout.
func (r *Ring) WaitFree(i int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if r.state[i].CompareAndSwap(slotFree, slotProcessing) {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		time.Sleep(waitQuantum)
	}
}

// WaitFilled waits until slot i has been filled. It returns ErrTimeout
// when the slot was not filled within timeout.
func (r *Ring) WaitFilled(i int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if r.state[i].Load() == slotFilled {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		time.Sleep(waitQuantum)
	}
}

// SetFilled publishes slot i to the consumer side.
func (r *Ring) SetFilled(i int) { r.state[i].Store(slotFilled) }

// SetFree recycles slot i for the ingest side.
func (r *Ring) SetFree(i int) { r.state[i].Store(slotFree) }
