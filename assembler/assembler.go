// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package assembler implements the sliding-window datagram deinterleaver
// that places packets into raw voltage blocks: a two-wide window of
// working blocks that advances, finalizes, and reinitializes on packet
// index discontinuities.
package assembler // import "github.com/go-lpc/voltage-ingest/assembler"

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-lpc/voltage-ingest/block"
	"github.com/go-lpc/voltage-ingest/obsinfo"
	"github.com/go-lpc/voltage-ingest/packet"
	"github.com/go-lpc/voltage-ingest/statusbuf"
)

const freeWaitTimeout = 100 * time.Millisecond

// wblk is one working block: a ring slot currently accepting packets.
type wblk struct {
	slot    int   // slot index in the output ring
	num     int64 // absolute block number
	view    *block.View
	npacket uint32
	ndrop   uint32
}

// Assembler owns the two working blocks W[0] and W[1] and the output
// ring they are acquired from. W[1] always holds block number
// W[0].num+1; both slots are claimed free from the ring before any
// packet is written into them.
type Assembler struct {
	msg  *log.Logger
	sb   *statusbuf.Buffer
	ring *block.Ring

	oi  obsinfo.ObsInfo
	der obsinfo.Derived

	w [2]wblk

	// counters drained by the ingest loop at block boundaries.
	ndropTotal uint64
	nlate      uint64
}

// New builds an assembler over ring for the given geometry and claims
// the initial working blocks 0 and 1. The status buffer carries the
// free-wait state (NETSTAT/NETBUFST) and is snapshotted into each
// acquired block's header.
func New(ctx context.Context, sb *statusbuf.Buffer, ring *block.Ring, oi obsinfo.ObsInfo, der obsinfo.Derived, opts ...Option) (*Assembler, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	a := &Assembler{
		msg:  cfg.msg,
		sb:   sb,
		ring: ring,
		oi:   oi,
		der:  der,
	}

	for i := range a.w {
		a.w[i] = wblk{slot: i, num: int64(i)}
		if err := a.acquire(ctx, &a.w[i]); err != nil {
			return nil, fmt.Errorf("assembler: could not claim working block %d: %w", i, err)
		}
	}
	return a, nil
}

// Reconfigure installs a new observation geometry and rebuilds the
// working blocks' scatter views in place. Packets already written are
// kept as-is; the counters are not reset.
func (a *Assembler) Reconfigure(oi obsinfo.ObsInfo, der obsinfo.Derived) error {
	a.oi = oi
	a.der = der
	for i := range a.w {
		view, err := block.NewView(a.ring.Data(a.w[i].slot), oi, der)
		if err != nil {
			return fmt.Errorf("assembler: could not rebuild view for working block %d: %w", i, err)
		}
		a.w[i].view = view
	}
	return nil
}

// acquire claims w's ring slot, copies a status snapshot into its header
// and builds its scatter view. While the slot is busy, NETSTAT reports
// waitfree then outblocked with NETBUFST=used/total, and the wait
// retries until the slot frees or ctx is cancelled.
func (a *Assembler) acquire(ctx context.Context, w *wblk) error {
	var netstat string
	a.sb.Locked(func(s *statusbuf.Store) {
		netstat, _ = s.Str(statusbuf.KeyNetStat)
		s.SetStr(statusbuf.KeyNetStat, "waitfree")
		s.SetStr(statusbuf.KeyNetBufSt, a.netbufst())
	})

	for {
		err := a.ring.WaitFree(w.slot, freeWaitTimeout)
		if err == nil {
			break
		}
		if !errors.Is(err, block.ErrTimeout) {
			return fmt.Errorf("assembler: could not wait for free block (slot=%d): %w", w.slot, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		a.sb.Locked(func(s *statusbuf.Store) {
			s.SetStr(statusbuf.KeyNetStat, "outblocked")
			s.SetStr(statusbuf.KeyNetBufSt, a.netbufst())
		})
	}

	a.sb.Locked(func(s *statusbuf.Store) {
		s.SetStr(statusbuf.KeyNetStat, netstat)
		copy(a.ring.Header(w.slot), s.Snapshot())
	})

	view, err := block.NewView(a.ring.Data(w.slot), a.oi, a.der)
	if err != nil {
		return fmt.Errorf("assembler: could not build view (slot=%d): %w", w.slot, err)
	}
	w.view = view
	w.npacket = 0
	w.ndrop = 0
	return nil
}

// finalize writes w's counters on top of the header snapshot and hands
// the block to the consumer. It is called at most once per block
// lifetime: afterwards w must be re-acquired before any further write.
func (a *Assembler) finalize(w *wblk) {
	if a.der.PktsPerBlock > w.npacket {
		w.ndrop = a.der.PktsPerBlock - w.npacket
	} else {
		w.ndrop = 0
	}

	hdr := a.ring.Header(w.slot)
	block.SetUint(hdr, statusbuf.KeyPktIdx, uint64(w.num)*uint64(a.der.PIPerBlk))
	block.SetUint(hdr, "NPKT", uint64(w.npacket))
	block.SetUint(hdr, statusbuf.KeyNDrop, uint64(w.ndrop))
	block.SetStr(hdr, "DROPSTAT", fmt.Sprintf("%d/%d", w.ndrop, a.der.PktsPerBlock))
	a.ring.SetFilled(w.slot)

	a.ndropTotal += uint64(w.ndrop)
}

func (a *Assembler) netbufst() string {
	return fmt.Sprintf("%d/%d", a.ring.NumFilled(), a.ring.NumBlocks())
}

// Feed routes one parsed packet through the window decision table and
// reports what happened to the window. The caller checks the recording
// window (PKTSTART/PKTSTOP) whenever Feed reports Advanced or Reinit,
// using FirstPktIdx.
func (a *Assembler) Feed(ctx context.Context, hdr packet.Header, payload []byte) (Outcome, error) {
	b := int64(hdr.PktIdx / uint64(a.der.PIPerBlk))
	out := Scattered

	switch {
	case b == a.w[1].num+1:
		// advance: W[0] is complete, hand it downstream and slide the
		// window one block forward.
		a.finalize(&a.w[0])
		a.w[0] = a.w[1]
		a.w[1] = wblk{
			slot: (a.w[1].slot + 1) % a.ring.NumBlocks(),
			num:  b,
		}
		if err := a.acquire(ctx, &a.w[1]); err != nil {
			return Advanced, err
		}
		out = Advanced

	case b < a.w[0].num-1 || b > a.w[1].num+1:
		// discontinuity: finalize both partial blocks with their
		// accumulated drops, then rebuild the window one block past the
		// disruptor. The disruptor itself is discarded.
		a.msg.Printf("working blocks reinit due to packet discontinuity (PKTIDX %d)", hdr.PktIdx)
		a.finalize(&a.w[0])
		a.finalize(&a.w[1])
		slot := a.w[1].slot
		for i := range a.w {
			a.w[i] = wblk{
				slot: (slot + 1 + i) % a.ring.NumBlocks(),
				num:  b + int64(i) + 1,
			}
			if err := a.acquire(ctx, &a.w[i]); err != nil {
				return Reinit, err
			}
		}
		out = Reinit

	case b == a.w[0].num-1:
		a.nlate++
		return Late, nil
	}

	if idx := b - a.w[0].num; 0 <= idx && idx < 2 {
		if a.w[idx].view.Scatter(hdr, payload) {
			a.w[idx].npacket++
		}
	}
	return out, nil
}

// FirstPktIdx returns the packet index of the first slot of W[0], the
// value the recording window is checked against.
func (a *Assembler) FirstPktIdx() uint64 {
	return uint64(a.w[0].num) * uint64(a.der.PIPerBlk)
}

// DrainCounters returns and resets the accumulated per-window NDROP and
// NLATE counts.
func (a *Assembler) DrainCounters() (ndrop, nlate uint64) {
	ndrop, nlate = a.ndropTotal, a.nlate
	a.ndropTotal, a.nlate = 0, 0
	return ndrop, nlate
}

type config struct {
	msg *log.Logger
}

func newConfig() config {
	return config{
		msg: log.New(os.Stdout, "assembler: ", 0),
	}
}

// Option configures an Assembler.
type Option func(*config)

// WithLogger sets the logger warnings are sent to.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) { cfg.msg = msg }
}
