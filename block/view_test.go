// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import (
	"encoding/binary"
	"testing"

	"github.com/go-lpc/voltage-ingest/obsinfo"
	"github.com/go-lpc/voltage-ingest/packet"
)

func testGeometry(t *testing.T, nants, nstrm, pktnchan, pktntime, piperblk uint32) (obsinfo.ObsInfo, obsinfo.Derived) {
	t.Helper()
	oi := obsinfo.New(
		obsinfo.WithNAnts(nants),
		obsinfo.WithNStrm(nstrm),
		obsinfo.WithPktNChan(pktnchan),
		obsinfo.WithPktNTime(pktntime),
	)
	size := int(piperblk * nants * nstrm * pktnchan * pktntime * 2)
	der, err := obsinfo.Derive(size, oi)
	if err != nil {
		t.Fatalf("could not derive geometry: %+v", err)
	}
	if got, want := der.PIPerBlk, piperblk; got != want {
		t.Fatalf("invalid PIPERBLK: got=%d, want=%d", got, want)
	}
	return oi, der
}

func TestScatter(t *testing.T) {
	oi, der := testGeometry(t, 2, 2, 4, 3, 8)

	data := make([]byte, der.EffBlockSize)
	view, err := NewView(data, oi, der)
	if err != nil {
		t.Fatalf("could not build view: %+v", err)
	}

	// payload samples are numbered so each 16-bit unit identifies its
	// (time, channel) origin.
	payload := make([]byte, oi.PayloadBytes())
	for i := 0; i < len(payload)/2; i++ {
		binary.LittleEndian.PutUint16(payload[2*i:], uint16(0x100+i))
	}

	hdr := packet.Header{
		PktIdx:   11, // 11 mod 8 = 3
		FEngID:   1,
		FEngChan: 4, // (4-0)/4 = stream 1
	}
	if !view.Scatter(hdr, payload) {
		t.Fatalf("scatter refused a valid packet")
	}

	var (
		ostride      = int(der.PIPerBlk * oi.PktNTime)     // 24
		streamStride = oi.PayloadBytes() / 2 * int(der.PIPerBlk) // 96
		fidStride    = streamStride * int(oi.NStrm)
		base         = 1*fidStride + 1*streamStride + 3*int(oi.PktNTime)
	)

	for ti := 0; ti < int(oi.PktNTime); ti++ {
		for c := 0; c < int(oi.PktNChan); c++ {
			off := 2 * (base + ti + c*ostride)
			got := binary.LittleEndian.Uint16(data[off:])
			want := uint16(0x100 + ti*int(oi.PktNChan) + c)
			if got != want {
				t.Fatalf("t=%d c=%d: got=0x%x, want=0x%x", ti, c, got, want)
			}
		}
	}

	// no byte outside the packet's rectangle was touched.
	touched := make(map[int]bool)
	for ti := 0; ti < int(oi.PktNTime); ti++ {
		for c := 0; c < int(oi.PktNChan); c++ {
			off := 2 * (base + ti + c*ostride)
			touched[off] = true
			touched[off+1] = true
		}
	}
	for i, b := range data {
		if b != 0 && !touched[i] {
			t.Fatalf("byte %d touched outside the packet rectangle", i)
		}
	}
}

func TestScatterRejects(t *testing.T) {
	oi, der := testGeometry(t, 1, 1, 4, 3, 8)

	data := make([]byte, der.EffBlockSize)
	view, err := NewView(data, oi, der)
	if err != nil {
		t.Fatalf("could not build view: %+v", err)
	}

	payload := make([]byte, oi.PayloadBytes())
	for _, tc := range []struct {
		name string
		hdr  packet.Header
	}{
		{"fid-out-of-range", packet.Header{FEngID: 1}},
		{"stream-out-of-range", packet.Header{FEngChan: 4}},
		{"stream-far-out", packet.Header{FEngChan: 0xffffffff}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if view.Scatter(tc.hdr, payload) {
				t.Fatalf("scatter accepted an out-of-range packet")
			}
		})
	}

	if view.Scatter(packet.Header{}, payload[:1]) {
		t.Fatalf("scatter accepted a short payload")
	}
}

func TestNewViewBounds(t *testing.T) {
	oi, der := testGeometry(t, 1, 1, 4, 3, 8)

	if _, err := NewView(make([]byte, der.EffBlockSize-1), oi, der); err == nil {
		t.Fatalf("expected an error for a too-small data area")
	}

	bad := oi
	bad.NBits = 8 // pol pair no longer fits in 16 bits
	if _, err := NewView(make([]byte, der.EffBlockSize), bad, der); err == nil {
		t.Fatalf("expected an error for a non-16-bit sample unit")
	}
}
