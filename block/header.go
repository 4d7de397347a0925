// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-lpc/voltage-ingest/statusbuf"
)

// Header region card access. At finalize, the ingest copies a status
// buffer snapshot into the block header and then writes the per-block
// counters (PKTIDX, NPKT, NDROP, DROPSTAT) on top, overwriting the
// snapshot's cards where present and growing the card list otherwise.

// SetStr writes a string-valued card into hdr, overwriting an existing
// card for key or appending before the END card.
func SetStr(hdr []byte, key, val string) {
	setCard(hdr, key, fmt.Sprintf("'%-8s'", val))
}

// SetInt writes an integer-valued card into hdr.
func SetInt(hdr []byte, key string, v int64) {
	setCard(hdr, key, fmt.Sprintf("%20d", v))
}

// SetUint writes an unsigned integer-valued card into hdr.
func SetUint(hdr []byte, key string, v uint64) {
	setCard(hdr, key, fmt.Sprintf("%20d", v))
}

func setCard(hdr []byte, key, val string) {
	off, end := findCard(hdr, key)
	if off < 0 {
		return // header region full
	}
	card := make([]byte, statusbuf.CardSize)
	for i := range card {
		card[i] = ' '
	}
	copy(card, fmt.Sprintf("%-8s= %s", key, val))
	copy(hdr[off:], card)
	if end && off+2*statusbuf.CardSize <= len(hdr) {
		// the END card was overwritten: move it one card down.
		copy(hdr[off+statusbuf.CardSize:], "END")
	}
}

// GetStr returns the string value of the card for key in hdr.
func GetStr(hdr []byte, key string) (string, bool) {
	off, end := findCard(hdr, key)
	if off < 0 || end {
		return "", false
	}
	val := strings.TrimSpace(string(hdr[off+10 : off+statusbuf.CardSize]))
	val = strings.Trim(val, "'")
	return strings.TrimRight(val, " "), true
}

// GetInt returns the integer value of the card for key in hdr.
func GetInt(hdr []byte, key string) (int64, bool) {
	s, ok := GetStr(hdr, key)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// findCard returns the offset of the card for key, or of the END card
// (end=true) when key is absent. off<0 means the region is exhausted.
func findCard(hdr []byte, key string) (off int, end bool) {
	want := []byte(fmt.Sprintf("%-8s=", key))
	for off = 0; off+statusbuf.CardSize <= len(hdr); off += statusbuf.CardSize {
		card := hdr[off : off+statusbuf.CardSize]
		if bytes.HasPrefix(card, want) {
			return off, false
		}
		if bytes.HasPrefix(card, []byte("END")) {
			return off, true
		}
	}
	return -1, false
}
