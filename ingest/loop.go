// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ingest orchestrates the UDP voltage-ingest pipeline: it walks
// the packet source's input blocks, parses and validates each frame,
// routes it through the block assembler and publishes throughput and
// drop statistics to the status buffer.
package ingest // import "github.com/go-lpc/voltage-ingest/ingest"

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-lpc/voltage-ingest/assembler"
	"github.com/go-lpc/voltage-ingest/block"
	"github.com/go-lpc/voltage-ingest/obsinfo"
	"github.com/go-lpc/voltage-ingest/obsstate"
	"github.com/go-lpc/voltage-ingest/packet"
	"github.com/go-lpc/voltage-ingest/statusbuf"
)

// Loop is the ingest's single dedicated processing loop. Its only
// coupling to the capture and consumer threads is the two rings; the
// status buffer carries everything else.
type Loop struct {
	cfg config

	sb      *statusbuf.Buffer
	src     PacketSource
	ring    *block.Ring
	flows   *obsstate.Flows
	machine *obsstate.Machine
	bogus   *packet.BogusCounter

	oi      obsinfo.ObsInfo
	der     obsinfo.Derived
	oiValid bool
	asm     *assembler.Assembler

	payloadSize int // first accepted payload size this observation

	// per-second (PHYS*) and per-block (NET*) throughput counters.
	packetCount uint64
	bitsPhys    uint64
	pktsPhys    uint64
	bitsNet     uint64
	pktsNet     uint64
	nsNet       int64

	statusSeq uint64 // pktidx of the last per-block status update

	lastTick time.Time

	// moving average of fill-to-free latency over the input ring.
	fillToFree    []int64
	fillToFreeSum int64
}

// New builds an ingest loop over the given source, output ring, flow
// manager and state machine.
func New(sb *statusbuf.Buffer, src PacketSource, ring *block.Ring, flows *obsstate.Flows, machine *obsstate.Machine, opts ...Option) (*Loop, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if src.NumBlocks() < 1 || src.SlotsPerBlock() < 1 {
		return nil, fmt.Errorf("ingest: invalid packet source geometry (%d blocks, %d slots)",
			src.NumBlocks(), src.SlotsPerBlock())
	}

	return &Loop{
		cfg:        cfg,
		sb:         sb,
		src:        src,
		ring:       ring,
		flows:      flows,
		machine:    machine,
		bogus:      packet.NewBogusCounter(cfg.bogusLogEvery),
		statusSeq:  math.MaxUint64,
		fillToFree: make([]int64, src.NumBlocks()),
	}, nil
}

// Run drives the ingest until ctx is cancelled. Cancellation is polled
// at the two ring-wait points and at each outer-loop boundary;
// in-flight input blocks are released and in-flight output blocks are
// abandoned un-finalized.
func (l *Loop) Run(ctx context.Context) error {
	l.initStatus()
	l.refreshObsInfo()

	iblk := 0
	l.lastTick = time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		tRecv, err := l.waitData(ctx, iblk)
		if err != nil {
			return err
		}

		if !l.oiValid {
			l.sb.Locked(func(s *statusbuf.Store) {
				s.SetStr(statusbuf.KeyNetStat, "obsinfo")
			})
			l.src.SetFree(iblk)
			iblk = (iblk + 1) % l.src.NumBlocks()
			continue
		}

		if l.asm == nil {
			l.asm, err = assembler.New(ctx, l.sb, l.ring, l.oi, l.der,
				assembler.WithLogger(l.cfg.msg))
			if err != nil {
				l.src.SetFree(iblk)
				return fmt.Errorf("ingest: could not create assembler: %w", err)
			}
		}

		err = l.processBlock(ctx, iblk)
		if err != nil {
			l.src.SetFree(iblk)
			return err
		}

		l.src.SetFree(iblk)
		l.updateFillToFree(iblk, time.Since(tRecv).Nanoseconds())
		iblk = (iblk + 1) % l.src.NumBlocks()
	}
}

// waitData waits for input block iblk to fill, running the 1 Hz status
// tick while it waits. It returns the time the block was received.
func (l *Loop) waitData(ctx context.Context, iblk int) (time.Time, error) {
	waiting := false
	for {
		err := l.src.WaitFilled(iblk, l.cfg.waitTimeout)
		now := time.Now()

		if now.Sub(l.lastTick) >= time.Second {
			l.tick(now)
		}

		if err == nil {
			if waiting {
				l.sb.Locked(func(s *statusbuf.Store) {
					s.SetStr(statusbuf.KeyNetStat, "receiving")
				})
			}
			return now, nil
		}
		if !errors.Is(err, ErrTimeout) {
			return now, fmt.Errorf("ingest: could not wait for input block %d: %w", iblk, err)
		}

		if !waiting {
			l.sb.Locked(func(s *statusbuf.Store) {
				s.SetStr(statusbuf.KeyNetStat, "waiting")
			})
			waiting = true
		}

		select {
		case <-ctx.Done():
			return now, ctx.Err()
		default:
		}
	}
}

// processBlock walks all slots of input block iblk through the window
// decision table, updating the per-block status cards at each
// block-boundary packet.
func (l *Loop) processBlock(ctx context.Context, iblk int) error {
	t0 := time.Now()
	for slot := 0; slot < l.src.SlotsPerBlock(); slot++ {
		frame := l.src.Frame(iblk, slot)
		if frame == nil {
			continue
		}

		hdr, off, err := packet.Parse(frame, l.cfg.legacy)
		if err != nil {
			l.countBogus(err)
			continue
		}
		payload := frame[off:]

		if l.payloadSize == 0 {
			l.payloadSize = len(payload)
		}
		err = packet.Validate(hdr, len(payload), l.payloadSize,
			l.oi.NAnts, l.oi.SChan, l.oi.PktNChan)
		switch {
		case err == nil:
			// ok
		case errors.Is(err, packet.ErrOutOfRange):
			continue
		default:
			l.countBogus(err)
			continue
		}

		l.packetCount++
		l.pktsNet++
		l.pktsPhys++
		l.bitsNet += 8 * uint64(l.payloadSize)
		l.bitsPhys += 8 * uint64(l.payloadSize)

		if hdr.PktIdx%uint64(l.der.PIPerBlk) == 0 && hdr.PktIdx != l.statusSeq {
			l.statusSeq = hdr.PktIdx
			l.blockBoundaryUpdate(hdr.PktIdx)
		}

		out, err := l.asm.Feed(ctx, hdr, payload)
		if err != nil {
			return fmt.Errorf("ingest: could not assemble pktidx=%d: %w", hdr.PktIdx, err)
		}
		if out == assembler.Advanced || out == assembler.Reinit {
			l.machine.CheckStartStop(l.sb, l.asm.FirstPktIdx())
		}
	}
	l.nsNet += time.Since(t0).Nanoseconds()
	return nil
}

// blockBoundaryUpdate republishes the per-block status cards: PKTIDX,
// the normalized recording window, the effective block size and the
// NET* rates, and drains the window's drop counters.
func (l *Loop) blockBoundaryUpdate(pktidx uint64) {
	var (
		netgbps, netpkps float64
		ndrop, nlate     uint64
	)
	if l.nsNet != 0 {
		netgbps = float64(l.bitsNet) / float64(l.nsNet)
		netpkps = 1e9 * float64(l.pktsNet) / float64(l.nsNet)
		l.bitsNet, l.pktsNet, l.nsNet = 0, 0, 0
	}
	if l.asm != nil {
		ndrop, nlate = l.asm.DrainCounters()
	}

	piperblk := uint64(l.der.PIPerBlk)

	l.sb.Locked(func(s *statusbuf.Store) {
		s.SetUint(statusbuf.KeyPktIdx, pktidx)
		s.SetUint(statusbuf.KeyBlocSize, uint64(l.der.EffBlockSize))

		// PKTSTART is rounded down to a block boundary and written back.
		pktstart, _ := s.Uint(statusbuf.KeyPktStart)
		pktstart -= pktstart % piperblk
		s.SetUint(statusbuf.KeyPktStart, pktstart)

		dwell, ok := s.Float(statusbuf.KeyDwell)
		if !ok {
			dwell = l.cfg.dwell
		}
		s.SetFloat(statusbuf.KeyDwell, dwell)

		chanBW, ok := s.Float(statusbuf.KeyChanBW)
		if !ok || chanBW == 0 {
			chanBW = 1
		}
		tbin := 1e-6 / math.Abs(chanBW)
		s.SetFloat(statusbuf.KeyTBin, tbin)

		// DWELL seconds, truncated to whole blocks, give PKTSTOP.
		blockSecs := tbin * float64(l.oi.PktNTime) * float64(piperblk)
		dwellBlocks := uint64(dwell / blockSecs)
		s.SetUint(statusbuf.KeyPktStop, pktstart+piperblk*dwellBlocks)

		s.SetFloat(statusbuf.KeyNetGbps, netgbps)
		s.SetFloat(statusbuf.KeyNetPkps, netpkps)

		total, _ := s.Uint(statusbuf.KeyNDrop)
		s.SetUint(statusbuf.KeyNDrop, total+ndrop)
		total, _ = s.Uint(statusbuf.KeyNLate)
		s.SetUint(statusbuf.KeyNLate, total+nlate)
	})
}

// tick runs the once-per-second status update: heartbeat, physical
// rates, observation-geometry refresh and DESTIP changes.
func (l *Loop) tick(now time.Time) {
	elapsed := now.Sub(l.lastTick)
	l.lastTick = now

	var (
		physgbps = float64(l.bitsPhys) / float64(elapsed.Nanoseconds())
		physpkps = 1e9 * float64(l.pktsPhys) / float64(elapsed.Nanoseconds())
	)
	l.bitsPhys, l.pktsPhys = 0, 0

	var destip string
	l.sb.Locked(func(s *statusbuf.Store) {
		s.SetStr(statusbuf.KeyDAQPulse, now.Format(time.ANSIC))

		npkts, _ := s.Uint(statusbuf.KeyNPkts)
		s.SetUint(statusbuf.KeyNPkts, npkts+l.packetCount)
		l.packetCount = 0

		s.SetFloat(statusbuf.KeyPhysGbps, physgbps)
		s.SetFloat(statusbuf.KeyPhysPkps, physpkps)
		s.SetUint(statusbuf.KeyNBogus, l.bogus.Total())

		destip, _ = s.Str(statusbuf.KeyDestIP)
	})

	l.refreshObsInfo()
	l.updateDestIP(destip)
}

// updateDestIP applies a DESTIP change through the flow manager and
// drives the IDLE transitions. A rejected change is logged and the old
// value restored in the status buffer.
func (l *Loop) updateDestIP(destip string) {
	if destip == "" || destip == l.flows.DestIP() {
		return
	}

	err := l.flows.Update(destip)
	if err != nil {
		l.cfg.msg.Printf("could not update DESTIP: %+v", err)
	}
	l.sb.Locked(func(s *statusbuf.Store) {
		s.SetStr(statusbuf.KeyDestIP, l.flows.DestIP())
	})

	switch {
	case l.flows.Active() == 0 && l.machine.State() != obsstate.Idle && l.flows.DestIP() == "0.0.0.0":
		l.machine.SetIdle(l.sb)
	case l.flows.Active() > 0 && l.machine.State() == obsstate.Idle:
		l.machine.SetListen(l.sb)
	}
}

// refreshObsInfo re-reads the observation geometry from the status
// buffer and rederives the block quantities, publishing OBSINFO and the
// derived cards.
func (l *Loop) refreshObsInfo() {
	var oi obsinfo.ObsInfo
	l.sb.Locked(func(s *statusbuf.Store) {
		oi = readObsInfo(s)
	})

	der, err := obsinfo.Derive(l.ring.DataSize(), oi)
	valid := err == nil

	l.sb.Locked(func(s *statusbuf.Store) {
		if valid {
			s.SetUint(statusbuf.KeyObsNChan, uint64(der.ObsNChan))
			s.SetUint(statusbuf.KeyPiperBlk, uint64(der.PIPerBlk))
			s.SetUint(statusbuf.KeyBlocSize, uint64(der.EffBlockSize))
			s.SetStr(statusbuf.KeyObsInfo, "VALID")
		} else {
			s.SetStr(statusbuf.KeyObsInfo, "INVALID")
		}
	})

	if !valid {
		l.oiValid = false
		return
	}

	changed := oi != l.oi || der != l.der
	l.oi, l.der, l.oiValid = oi, der, true

	if changed && l.asm != nil {
		if err := l.asm.Reconfigure(oi, der); err != nil {
			l.cfg.msg.Printf("could not reconfigure assembler: %+v", err)
			l.oiValid = false
		}
	}
	if changed {
		l.payloadSize = 0
	}
}

func readObsInfo(s *statusbuf.Store) obsinfo.ObsInfo {
	opts := []obsinfo.Option{}
	if v, ok := s.Uint(statusbuf.KeyFEnChan); ok {
		opts = append(opts, obsinfo.WithFEngChan(uint32(v)))
	}
	if v, ok := s.Uint(statusbuf.KeyNAnts); ok {
		opts = append(opts, obsinfo.WithNAnts(uint32(v)))
	}
	if v, ok := s.Uint(statusbuf.KeyNStrm); ok {
		opts = append(opts, obsinfo.WithNStrm(uint32(v)))
	}
	if v, ok := s.Uint(statusbuf.KeyPktNTime); ok {
		opts = append(opts, obsinfo.WithPktNTime(uint32(v)))
	}
	if v, ok := s.Uint(statusbuf.KeyPktNChan); ok {
		opts = append(opts, obsinfo.WithPktNChan(uint32(v)))
	}
	if v, ok := s.Int(statusbuf.KeySChan); ok {
		opts = append(opts, obsinfo.WithSChan(int32(v)))
	}
	if v, ok := s.Uint(statusbuf.KeyNPol); ok {
		opts = append(opts, obsinfo.WithNPol(uint32(v)))
	}
	if v, ok := s.Uint(statusbuf.KeyNBits); ok {
		opts = append(opts, obsinfo.WithNBits(uint32(v)))
	}
	return obsinfo.New(opts...)
}

// initStatus seeds the status buffer with the observation defaults,
// keeping any value an operator already stored there.
func (l *Loop) initStatus() {
	l.sb.Locked(func(s *statusbuf.Store) {
		setDefaults := []struct {
			key string
			val string
		}{
			{statusbuf.KeyObsMode, "RAW"},
			{statusbuf.KeyPktFmt, "ATASNAPV"},
		}
		for _, kv := range setDefaults {
			if _, ok := s.Str(kv.key); !ok {
				s.SetStr(kv.key, kv.val)
			}
		}

		chanBW, ok := s.Float(statusbuf.KeyChanBW)
		if !ok || chanBW == 0 {
			chanBW = 1
			s.SetFloat(statusbuf.KeyChanBW, chanBW)
		}
		s.SetFloat(statusbuf.KeyTBin, 1e-6/math.Abs(chanBW))

		obsnchan, ok := s.Uint(statusbuf.KeyObsNChan)
		if !ok {
			obsnchan = 1
		}
		nants, ok := s.Uint(statusbuf.KeyNAnts)
		if !ok || nants == 0 {
			nants = 1
		}
		s.SetFloat(statusbuf.KeyObsBW, chanBW*float64(obsnchan)/float64(nants))

		if _, ok := s.Uint(statusbuf.KeyDirectIO); !ok {
			s.SetUint(statusbuf.KeyDirectIO, 1)
		}
		if _, ok := s.Uint(statusbuf.KeyOverlap); !ok {
			s.SetUint(statusbuf.KeyOverlap, 0)
		}
		if _, ok := s.Uint(statusbuf.KeyBindPort); !ok {
			s.SetUint(statusbuf.KeyBindPort, uint64(l.cfg.bindPort))
		}

		s.SetStr(statusbuf.KeyDAQState, l.machine.State().String())
		s.SetUint(statusbuf.KeyNDrop, 0)
		s.SetStr(statusbuf.KeyNetStat, "init")
	})
}

func (l *Loop) countBogus(err error) {
	total, shouldLog := l.bogus.Count(time.Now())
	if shouldLog {
		l.cfg.msg.Printf("bogus frame (NBOGUS=%d): %+v", total, err)
	}
}

// updateFillToFree folds one fill-to-free latency sample into the
// moving average, publishing NETBLKMS each time the input ring wraps.
func (l *Loop) updateFillToFree(iblk int, ns int64) {
	l.fillToFreeSum += ns - l.fillToFree[iblk]
	l.fillToFree[iblk] = ns

	if iblk == l.src.NumBlocks()-1 {
		ms := math.Round(float64(l.fillToFreeSum)/float64(l.src.NumBlocks())) / 1e6
		l.sb.Locked(func(s *statusbuf.Store) {
			s.SetFloat(statusbuf.KeyNetBlkMS, ms)
		})
	}
}
