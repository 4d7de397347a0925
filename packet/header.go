// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package packet decodes the fixed-layout UDP datagrams produced by the
// F-engine and validates them against the observation's current geometry.
// Headers are big-endian; every multi-byte fetch goes through an explicit
// byte-swapping accessor rather than an unsafe cast.
package packet // import "github.com/go-lpc/voltage-ingest/packet"

import (
	"errors"

	"golang.org/x/xerrors"
)

// headerSize is the number of leading bytes occupied by pktidx, feng_id
// and feng_chan, ahead of the payload.
const headerSize = 16

// Header is the decoded form of a packet's fixed-layout header.
type Header struct {
	PktIdx   uint64 // pktidx, top-8-bits masked when Parse is called in legacy mode.
	FEngID   uint32 // feng_id: antenna index.
	FEngChan uint32 // feng_chan: absolute starting channel of this packet.
}

// BogusError reports a malformed or unexpected frame; the caller counts it
// into NBOGUS without touching the working window.
type BogusError struct {
	Reason string
}

func (e *BogusError) Error() string { return "packet: bogus frame: " + e.Reason }

// Parse decodes a slot-aligned frame into a Header and the offset of its
// payload. When legacy is true, the top 8 bits of pktidx are masked off:
// they may carry an auxiliary channel tag in that mode. Parse itself
// performs no geometry-dependent validation; callers pair it with Validate.
func Parse(frame []byte, legacy bool) (Header, int, error) {
	if len(frame) < headerSize {
		return Header{}, 0, xerrors.Errorf("packet: could not parse frame: %w",
			&BogusError{Reason: "frame shorter than header"})
	}

	r := beReader{buf: frame}
	pktidx := r.u64()
	fengID := r.u32()
	fengChan := r.u32()

	if legacy {
		pktidx &= 0x00ffffffffffffff
	}

	return Header{
		PktIdx:   pktidx,
		FEngID:   fengID,
		FEngChan: fengChan,
	}, headerSize, nil
}

// ErrOutOfRange reports a well-formed frame whose antenna or channel
// falls outside the observation's geometry. Such packets are dropped
// silently, without incrementing NBOGUS.
var ErrOutOfRange = errors.New("packet: out of range")

// Validate checks a decoded header and its payload length against the
// observation's antenna count, channel alignment and the first accepted
// payload size for this observation. payloadSize is the number of bytes
// following the header in frame; wantPayloadSize is the size this
// observation has settled on (0 means "not yet settled" — the caller
// should adopt payloadSize as the reference). A *BogusError means the
// frame itself is malformed and should be counted into NBOGUS; an
// ErrOutOfRange means a valid frame that this instance does not handle.
func Validate(hdr Header, payloadSize, wantPayloadSize int, nants uint32, schan int32, pktnchan uint32) error {
	switch {
	case wantPayloadSize != 0 && payloadSize != wantPayloadSize:
		return &BogusError{Reason: "unexpected payload size"}
	case hdr.FEngID >= nants:
		return ErrOutOfRange
	case pktnchan != 0 && (int64(hdr.FEngChan)-int64(schan))%int64(pktnchan) != 0:
		return ErrOutOfRange
	default:
		return nil
	}
}
