// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rawconsumer implements a reference downstream consumer that
// drains filled voltage blocks to a GUPPI-RAW style file: each block's
// header region followed by its effective data bytes, in block order.
package rawconsumer // import "github.com/go-lpc/voltage-ingest/rawconsumer"

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-lpc/voltage-ingest/block"
	"github.com/go-lpc/voltage-ingest/statusbuf"
)

const waitTimeout = 100 * time.Millisecond

// Consumer sequentially empties a block ring into a raw file.
type Consumer struct {
	msg  *log.Logger
	ring *block.Ring
	f    *os.File

	nblocks atomic.Uint64
}

// New creates a consumer writing to fname.
func New(fname string, ring *block.Ring, msg *log.Logger) (*Consumer, error) {
	if msg == nil {
		msg = log.New(os.Stdout, "rawconsumer: ", 0)
	}
	f, err := os.Create(fname)
	if err != nil {
		return nil, fmt.Errorf("rawconsumer: could not create output file: %w", err)
	}
	return &Consumer{msg: msg, ring: ring, f: f}, nil
}

// Run drains the ring until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.f.Close()

	slot := 0
	for {
		err := c.ring.WaitFilled(slot, waitTimeout)
		if err != nil {
			if errors.Is(err, block.ErrTimeout) {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				continue
			}
			return fmt.Errorf("rawconsumer: could not wait for block: %w", err)
		}

		err = c.writeBlock(slot)
		if err != nil {
			return err
		}
		c.ring.SetFree(slot)
		c.nblocks.Add(1)
		slot = (slot + 1) % c.ring.NumBlocks()
	}
}

// writeBlock writes the block's header region followed by BLOCSIZE
// bytes of data; bytes past the effective block size are not recorded.
func (c *Consumer) writeBlock(slot int) error {
	hdr := c.ring.Header(slot)
	data := c.ring.Data(slot)

	size, ok := block.GetInt(hdr, statusbuf.KeyBlocSize)
	if !ok || size <= 0 || size > int64(len(data)) {
		size = int64(len(data))
	}

	if _, err := c.f.Write(hdr); err != nil {
		return fmt.Errorf("rawconsumer: could not write block header: %w", err)
	}
	if _, err := c.f.Write(data[:size]); err != nil {
		return fmt.Errorf("rawconsumer: could not write block data: %w", err)
	}
	return nil
}

// NumBlocks returns how many blocks have been written so far.
func (c *Consumer) NumBlocks() uint64 { return c.nblocks.Load() }
