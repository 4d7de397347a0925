// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

func testFrame(pktidx uint64, fengID, fengChan uint32, payload []byte) []byte {
	frame := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint64(frame[0:], pktidx)
	binary.BigEndian.PutUint32(frame[8:], fengID)
	binary.BigEndian.PutUint32(frame[12:], fengChan)
	copy(frame[headerSize:], payload)
	return frame
}

func TestParse(t *testing.T) {
	frame := testFrame(0xab00000000001234, 3, 64, []byte{1, 2, 3, 4})

	hdr, off, err := Parse(frame, false)
	if err != nil {
		t.Fatalf("could not parse frame: %+v", err)
	}
	if got, want := off, headerSize; got != want {
		t.Fatalf("invalid payload offset: got=%d, want=%d", got, want)
	}
	want := Header{PktIdx: 0xab00000000001234, FEngID: 3, FEngChan: 64}
	if hdr != want {
		t.Fatalf("got=%+v, want=%+v", hdr, want)
	}
}

func TestParseLegacyMask(t *testing.T) {
	frame := testFrame(0xab00000000001234, 0, 0, nil)

	hdr, _, err := Parse(frame, true)
	if err != nil {
		t.Fatalf("could not parse frame: %+v", err)
	}
	if got, want := hdr.PktIdx, uint64(0x1234); got != want {
		t.Fatalf("got=0x%x, want=0x%x", got, want)
	}
}

func TestParseShortFrame(t *testing.T) {
	_, _, err := Parse(make([]byte, headerSize-1), false)
	var bogus *BogusError
	if !errors.As(err, &bogus) {
		t.Fatalf("got=%+v, want a *BogusError", err)
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name    string
		hdr     Header
		size    int
		want    int
		bogus   bool
		dropped bool
	}{
		{name: "ok", hdr: Header{FEngID: 0, FEngChan: 64}, size: 2048, want: 2048},
		{name: "first-packet-settles-size", hdr: Header{}, size: 2048, want: 0},
		{name: "bad-size", hdr: Header{}, size: 1024, want: 2048, bogus: true},
		{name: "fid-out-of-range", hdr: Header{FEngID: 2}, size: 2048, want: 2048, dropped: true},
		{name: "chan-misaligned", hdr: Header{FEngChan: 3}, size: 2048, want: 2048, dropped: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.hdr, tc.size, tc.want, 2, 0, 64)
			switch {
			case tc.bogus:
				var bogus *BogusError
				if !errors.As(err, &bogus) {
					t.Fatalf("got=%+v, want a *BogusError", err)
				}
			case tc.dropped:
				if !errors.Is(err, ErrOutOfRange) {
					t.Fatalf("got=%+v, want=%+v", err, ErrOutOfRange)
				}
			default:
				if err != nil {
					t.Fatalf("got=%+v, want no error", err)
				}
			}
		})
	}
}

func TestBogusCounter(t *testing.T) {
	cnt := NewBogusCounter(time.Hour)
	now := time.Now()

	total, shouldLog := cnt.Count(now)
	if total != 1 || !shouldLog {
		t.Fatalf("got=(%d, %v), want=(1, true)", total, shouldLog)
	}

	// within the rate-limit interval: counted, not logged.
	total, shouldLog = cnt.Count(now.Add(time.Second))
	if total != 2 || shouldLog {
		t.Fatalf("got=(%d, %v), want=(2, false)", total, shouldLog)
	}

	// past the interval: logged again.
	_, shouldLog = cnt.Count(now.Add(2 * time.Hour))
	if !shouldLog {
		t.Fatalf("expected a log line past the rate-limit interval")
	}

	if got, want := cnt.Total(), uint64(3); got != want {
		t.Fatalf("got=%d, want=%d", got, want)
	}
}
