// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import (
	"fmt"

	"github.com/go-lpc/voltage-ingest/obsinfo"
	"github.com/go-lpc/voltage-ingest/packet"
)

// View is a typed 4-D [FID][STREAM][CHAN][TIME] view over a block's data
// area. Strides are computed once, at construction, in units of the
// 16-bit sample (the two polarizations packed together); the inner
// scatter loop then works on raw offsets with bounds already proven.
type View struct {
	data []byte

	pktNTime int
	pktNChan int
	nStrm    int
	nAnts    int
	sChan    int64
	piperblk uint64

	// strides, in 16-bit units
	ostride      int // channel to channel, within one (fid, stream, pktidx) cell
	streamStride int // one stream of one fid, for all pktidx of the block
	fidStride    int // all streams of one fid
	pktidxStride int // one pktidx cell along the time axis (PKTNTIME samples)
}

// NewView builds a scatter view over data for the given geometry. It
// fails when the block's effective size does not fit in data or when the
// sample unit is not the packed 16-bit polarization pair.
func NewView(data []byte, oi obsinfo.ObsInfo, der obsinfo.Derived) (*View, error) {
	payload := oi.PayloadBytes()
	if payload != int(oi.PktNTime*oi.PktNChan)*2 {
		return nil, fmt.Errorf(
			"block: sample unit is not a packed 16-bit polarization pair (NPOL=%d, NBITS=%d)",
			oi.NPol, oi.NBits,
		)
	}

	v := &View{
		data:     data,
		pktNTime: int(oi.PktNTime),
		pktNChan: int(oi.PktNChan),
		nStrm:    int(oi.NStrm),
		nAnts:    int(oi.NAnts),
		sChan:    int64(oi.SChan),
		piperblk: uint64(der.PIPerBlk),

		ostride:      int(der.PIPerBlk * oi.PktNTime),
		streamStride: payload / 2 * int(der.PIPerBlk),
		pktidxStride: int(oi.PktNTime),
	}
	v.fidStride = v.streamStride * v.nStrm

	if total := v.fidStride * int(oi.NAnts) * 2; total != int(der.EffBlockSize) {
		return nil, fmt.Errorf(
			"block: inconsistent geometry (strides give %d bytes, EFFBLKSIZE=%d)",
			total, der.EffBlockSize,
		)
	}
	if int(der.EffBlockSize) > len(data) {
		return nil, fmt.Errorf(
			"block: data area too small (%d bytes) for EFFBLKSIZE=%d",
			len(data), der.EffBlockSize,
		)
	}

	return v, nil
}

// Scatter copies one packet payload into the block at the packet's
// (antenna, stream, time, channel) rectangle. It reports whether the
// payload was written; a stream falling outside the view is dropped
// without touching the block. A duplicate packet simply overwrites its
// cell: the last write wins.
func (v *View) Scatter(hdr packet.Header, payload []byte) bool {
	if int(hdr.FEngID) >= v.nAnts {
		return false
	}
	stream := (int64(hdr.FEngChan) - v.sChan) / int64(v.pktNChan)
	if stream < 0 || stream >= int64(v.nStrm) {
		return false
	}
	if len(payload) < v.pktNTime*v.pktNChan*2 {
		return false
	}

	base := int(hdr.FEngID)*v.fidStride +
		int(stream)*v.streamStride +
		int(hdr.PktIdx%v.piperblk)*v.pktidxStride

	src := 0
	for t := 0; t < v.pktNTime; t++ {
		dst := base
		for c := 0; c < v.pktNChan; c++ {
			off := 2 * dst
			v.data[off] = payload[src]
			v.data[off+1] = payload[src+1]
			dst += v.ostride
			src += 2
		}
		base++
	}
	return true
}
