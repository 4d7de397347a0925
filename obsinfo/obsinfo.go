// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package obsinfo holds the observation geometry parameters that are
// immutable for the duration of an observation, and the derived
// quantities computed from them.
package obsinfo // import "github.com/go-lpc/voltage-ingest/obsinfo"

import "fmt"

// ObsInfo holds the observation parameters read from the status buffer
// that define the packet and block geometry of an observation.
type ObsInfo struct {
	PktNChan uint32 // PKTNCHAN: channels per packet
	PktNTime uint32 // PKTNTIME: time samples per packet
	NStrm    uint32 // NSTRM: channel-stream chunks per antenna
	NAnts    uint32 // NANTS: number of antennas
	FEngChan uint32 // FENCHAN: total channels produced by the F-engine
	SChan    int32  // SCHAN: absolute channel of the first channel handled here
	NPol     uint32 // NPOL: polarizations per sample
	NBits    uint32 // NBITS: bits per real/imaginary component
}

func newConfig() ObsInfo {
	return ObsInfo{
		PktNChan: 1,
		PktNTime: 1,
		NStrm:    1,
		NAnts:    1,
		NPol:     2,
		NBits:    4,
	}
}

// New builds an ObsInfo from the given options, starting from a
// conservative default (one antenna, one stream, 4-bit dual-pol samples).
func New(opts ...Option) ObsInfo {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// bytesPerSample is the number of bytes occupied by one (antenna, stream,
// channel, time) sample: NPol complex components of NBits each.
func (o ObsInfo) bytesPerSample() uint32 {
	return o.NPol * 2 * o.NBits / 8
}

// PayloadBytes returns the number of payload bytes carried by one packet:
// PKTNTIME x PKTNCHAN samples of bytesPerSample each.
func (o ObsInfo) PayloadBytes() int {
	return int(o.PktNTime * o.PktNChan * o.bytesPerSample())
}

// Valid reports whether o describes a geometry the assembler can act on:
// every multiplicand of PIPERBLK must be non-zero and FENCHAN, when set,
// must be an integral number of PKTNCHAN-sized chunks.
func Valid(o ObsInfo) bool {
	switch {
	case o.NAnts == 0, o.NStrm == 0, o.PktNChan == 0, o.PktNTime == 0, o.NPol == 0, o.NBits == 0:
		return false
	case o.FEngChan != 0 && o.PktNChan != 0 && o.FEngChan%o.PktNChan != 0:
		return false
	default:
		return true
	}
}

// Derived holds the quantities computed from an ObsInfo and the physical
// block data size.
type Derived struct {
	PIPerBlk     uint32 // PIPERBLK: pktidx values per block
	ObsNChan     uint32 // OBSNCHAN: total channels across antennas/streams
	EffBlockSize uint32 // EFFBLKSIZE: bytes actually written per block
	PktsPerBlock uint32 // PKTS_PER_BLOCK: packets expected per block
}

// Derive computes PIPERBLK, OBSNCHAN, EFFBLKSIZE and PKTS_PER_BLOCK for the
// given physical block data size and observation geometry. It returns an
// error rather than panicking when PIPERBLK would be zero, so that callers
// can park in the OBSINFO=INVALID state instead of crashing.
func Derive(blockDataSize int, o ObsInfo) (Derived, error) {
	if !Valid(o) {
		return Derived{}, fmt.Errorf("obsinfo: invalid observation geometry: %+v", o)
	}

	bytesPerSample := o.bytesPerSample()
	cellBytes := o.NAnts * o.NStrm * o.PktNChan * o.PktNTime * bytesPerSample
	if cellBytes == 0 {
		return Derived{}, fmt.Errorf("obsinfo: zero-size packet cell for %+v", o)
	}

	piperblk := uint32(blockDataSize) / cellBytes
	if piperblk == 0 {
		return Derived{}, fmt.Errorf(
			"obsinfo: PIPERBLK would be zero (block-data-size=%d, cell-bytes=%d)",
			blockDataSize, cellBytes,
		)
	}

	obsnchan := o.NAnts * o.NStrm * o.PktNChan
	effblksize := piperblk * obsnchan * o.PktNTime * bytesPerSample
	pktsPerBlock := piperblk * o.NAnts * o.NStrm

	return Derived{
		PIPerBlk:     piperblk,
		ObsNChan:     obsnchan,
		EffBlockSize: effblksize,
		PktsPerBlock: pktsPerBlock,
	}, nil
}
