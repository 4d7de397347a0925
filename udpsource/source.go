// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package udpsource implements a plain-UDP reference packet source: a
// ring of input blocks of slot-aligned frames filled from a UDP socket.
// It stands in for the kernel packet-socket or verbs-based capture of a
// production deployment, which plugs in behind the same interface.
package udpsource // import "github.com/go-lpc/voltage-ingest/udpsource"

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-lpc/voltage-ingest/ingest"
)

// PktAlignment is the alignment of each frame slot's start within an
// input block: the slot size must be a multiple of it. Only slot starts
// are aligned; the payload offset inside a slot is set by the packet
// header layout and is not aligned to PktAlignment.
const PktAlignment = 64

// Source reads datagrams from a UDP socket into a ring of input
// blocks. A block is published to the consumer when all its slots hold
// a frame, or when the flush interval expires with a partial block.
type Source struct {
	msg  *log.Logger
	conn *net.UDPConn

	nblocks  int
	slots    int
	slotSize int
	flush    time.Duration

	buf    []byte
	used   [][]bool // per-block, per-slot: slot carries a datagram
	filled []atomic.Bool

	mu     sync.Mutex
	nflows int
	ndrop  uint64 // datagrams dropped because the ring was full
}

type config struct {
	msg      *log.Logger
	nblocks  int
	slots    int
	slotSize int
	flush    time.Duration
}

func newConfig() config {
	return config{
		msg:      log.New(os.Stdout, "udpsource: ", 0),
		nblocks:  4,
		slots:    256,
		slotSize: 4096,
		flush:    10 * time.Millisecond,
	}
}

// Option configures a Source.
type Option func(*config)

// WithLogger sets the source's logger.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) { cfg.msg = msg }
}

// WithRing sets the input ring geometry: number of blocks, frame slots
// per block and slot size in bytes.
func WithRing(nblocks, slots, slotSize int) Option {
	return func(cfg *config) {
		cfg.nblocks = nblocks
		cfg.slots = slots
		cfg.slotSize = slotSize
	}
}

// WithFlushInterval sets how long a partial block may sit before it is
// published anyway.
func WithFlushInterval(d time.Duration) Option {
	return func(cfg *config) { cfg.flush = d }
}

// New listens on the given UDP address and returns an idle source; Run
// starts the capture.
func New(addr string, opts ...Option) (*Source, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.slotSize%PktAlignment != 0 {
		return nil, fmt.Errorf("udpsource: slot size %d not a multiple of %d", cfg.slotSize, PktAlignment)
	}

	uaddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udpsource: could not resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", uaddr)
	if err != nil {
		return nil, fmt.Errorf("udpsource: could not listen on %q: %w", addr, err)
	}

	src := &Source{
		msg:      cfg.msg,
		conn:     conn,
		nblocks:  cfg.nblocks,
		slots:    cfg.slots,
		slotSize: cfg.slotSize,
		flush:    cfg.flush,
		buf:      make([]byte, cfg.nblocks*cfg.slots*cfg.slotSize),
		used:     make([][]bool, cfg.nblocks),
		filled:   make([]atomic.Bool, cfg.nblocks),
	}
	for i := range src.used {
		src.used[i] = make([]bool, cfg.slots)
	}
	return src, nil
}

// Addr returns the local address the source listens on.
func (src *Source) Addr() string { return src.conn.LocalAddr().String() }

// Close closes the socket, unblocking Run.
func (src *Source) Close() error { return src.conn.Close() }

// NumBlocks implements ingest.PacketSource.
func (src *Source) NumBlocks() int { return src.nblocks }

// SlotsPerBlock implements ingest.PacketSource.
func (src *Source) SlotsPerBlock() int { return src.slots }

// WaitFilled implements ingest.PacketSource.
func (src *Source) WaitFilled(i int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if src.filled[i].Load() {
			return nil
		}
		if time.Now().After(deadline) {
			return ingest.ErrTimeout
		}
		time.Sleep(time.Millisecond)
	}
}

// SetFree implements ingest.PacketSource.
func (src *Source) SetFree(i int) {
	for s := range src.used[i] {
		src.used[i][s] = false
	}
	src.filled[i].Store(false)
}

// Frame implements ingest.PacketSource.
func (src *Source) Frame(i, slot int) []byte {
	if !src.used[i][slot] {
		return nil
	}
	off := (i*src.slots + slot) * src.slotSize
	return src.buf[off : off+src.slotSize]
}

// Run captures datagrams until ctx is cancelled or the socket closes.
func (src *Source) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = src.conn.Close()
	}()

	var (
		iblk    = 0
		slot    = 0
		started time.Time
		scratch = make([]byte, src.slotSize)
	)

	publish := func() {
		src.filled[iblk].Store(true)
		iblk = (iblk + 1) % src.nblocks
		slot = 0
		started = time.Time{}
	}

	for {
		err := src.conn.SetReadDeadline(time.Now().Add(src.flush))
		if err != nil {
			return fmt.Errorf("udpsource: could not set read deadline: %w", err)
		}

		n, _, err := src.conn.ReadFromUDP(scratch)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				// flush a partial block that has been sitting too long.
				if slot > 0 && !started.IsZero() && time.Since(started) >= src.flush {
					publish()
				}
				continue
			}
			return fmt.Errorf("udpsource: could not read datagram: %w", err)
		}
		if n == 0 {
			continue
		}

		if src.filled[iblk].Load() {
			// ring full: the ingest has not freed this block yet.
			src.mu.Lock()
			src.ndrop++
			src.mu.Unlock()
			continue
		}

		if slot == 0 {
			started = time.Now()
		}
		off := (iblk*src.slots + slot) * src.slotSize
		copy(src.buf[off:off+src.slotSize], scratch[:n])
		src.used[iblk][slot] = true
		slot++
		if slot == src.slots {
			publish()
		}
	}
}

// Drops returns the number of datagrams dropped on a full ring.
func (src *Source) Drops() uint64 {
	src.mu.Lock()
	defer src.mu.Unlock()
	return src.ndrop
}

// InstallFlow implements obsstate.FlowInstaller. A plain UDP socket
// captures whatever its bind address receives, so flows are only
// bookkeeping here; a verbs-based source steers real hardware flows.
func (src *Source) InstallFlow(idx int, ip net.IP, port uint16) error {
	src.mu.Lock()
	defer src.mu.Unlock()
	src.msg.Printf("install flow %d: %s:%d", idx, ip, port)
	if idx >= src.nflows {
		src.nflows = idx + 1
	}
	return nil
}

// RemoveFlow implements obsstate.FlowInstaller.
func (src *Source) RemoveFlow(idx int) error {
	src.mu.Lock()
	defer src.mu.Unlock()
	src.msg.Printf("remove flow %d", idx)
	if src.nflows > 0 {
		src.nflows--
	}
	return nil
}
