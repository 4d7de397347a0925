// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import "encoding/binary"

// beReader fetches big-endian multi-byte fields from a fixed byte slice,
// advancing its own cursor. It never returns an error: Parse checks the
// frame length once up front, so fetches after that are unconditional.
type beReader struct {
	buf []byte
	pos int
}

func (r *beReader) u32() uint32 {
	v := binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v
}

func (r *beReader) u64() uint64 {
	v := binary.BigEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v
}

func (r *beReader) u16() uint16 {
	v := binary.BigEndian.Uint16(r.buf[r.pos : r.pos+2])
	r.pos += 2
	return v
}
