// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obsstate

import (
	"testing"
	"time"

	"github.com/go-lpc/voltage-ingest/statusbuf"
)

func TestCheckStartStop(t *testing.T) {
	sb := statusbuf.New()
	sb.Locked(func(s *statusbuf.Store) {
		s.SetUint(statusbuf.KeyPktStart, 256)
		s.SetUint(statusbuf.KeyPktStop, 512)
		s.SetUint(statusbuf.KeyPktNTime, 16)
		s.SetFloat(statusbuf.KeyChanBW, 0.25)
		s.SetUint(statusbuf.KeySyncTime, 1577836800) // 2020-01-01T00:00:00Z
	})

	m := NewMachine()
	if got, want := m.State(), Listen; got != want {
		t.Fatalf("got=%v, want=%v", got, want)
	}

	// before the window.
	if got, want := m.CheckStartStop(sb, 0), Listen; got != want {
		t.Fatalf("got=%v, want=%v", got, want)
	}
	sb.Locked(func(s *statusbuf.Store) {
		if v, _ := s.Uint(statusbuf.KeySttValid); v != 0 {
			t.Fatalf("STTVALID=%d before the window", v)
		}
	})

	// inside the window: RECORD, STTVALID rises, MJD is stamped.
	if got, want := m.CheckStartStop(sb, 256), Record; got != want {
		t.Fatalf("got=%v, want=%v", got, want)
	}
	sb.Locked(func(s *statusbuf.Store) {
		if v, _ := s.Uint(statusbuf.KeySttValid); v != 1 {
			t.Fatalf("STTVALID=%d inside the window", v)
		}
		if v, _ := s.Str(statusbuf.KeyDAQState); v != "RECORD" {
			t.Fatalf("DAQSTATE=%q inside the window", v)
		}

		// realtime = 256*16/(1e6*0.25) = 0.016384 s after SYNCTIME.
		wantIMJD, wantSMJD, _ := timeToMJD(time.Unix(1577836800, 0).UTC())
		if v, _ := s.Int(statusbuf.KeySttIMJD); v != int64(wantIMJD) {
			t.Fatalf("STT_IMJD: got=%d, want=%d", v, wantIMJD)
		}
		if v, _ := s.Int(statusbuf.KeySttSMJD); v != int64(wantSMJD) {
			t.Fatalf("STT_SMJD: got=%d, want=%d", v, wantSMJD)
		}
		offs, _ := s.Float(statusbuf.KeySttOffs)
		if offs < 0.016 || offs > 0.017 {
			t.Fatalf("STT_OFFS: got=%v, want~=0.016384", offs)
		}
	})

	// still inside: the MJD fields are not recomputed.
	if got, want := m.CheckStartStop(sb, 384), Record; got != want {
		t.Fatalf("got=%v, want=%v", got, want)
	}

	// past the window: back to LISTEN, STTVALID falls.
	if got, want := m.CheckStartStop(sb, 512), Listen; got != want {
		t.Fatalf("got=%v, want=%v", got, want)
	}
	sb.Locked(func(s *statusbuf.Store) {
		if v, _ := s.Uint(statusbuf.KeySttValid); v != 0 {
			t.Fatalf("STTVALID=%d past the window", v)
		}
		if v, _ := s.Str(statusbuf.KeyDAQState); v != "LISTEN" {
			t.Fatalf("DAQSTATE=%q past the window", v)
		}
	})
}

func TestIdle(t *testing.T) {
	sb := statusbuf.New()
	m := NewMachine()

	m.SetIdle(sb)
	if got, want := m.State(), Idle; got != want {
		t.Fatalf("got=%v, want=%v", got, want)
	}
	sb.Locked(func(s *statusbuf.Store) {
		if v, _ := s.Str(statusbuf.KeyDAQState); v != "IDLE" {
			t.Fatalf("DAQSTATE=%q while idle", v)
		}
	})

	m.SetListen(sb)
	if got, want := m.State(), Listen; got != want {
		t.Fatalf("got=%v, want=%v", got, want)
	}
}

func TestTimeToMJD(t *testing.T) {
	// 2000-01-01T12:00:00Z is MJD 51544.5.
	imjd, smjd, offs := timeToMJD(time.Date(2000, 1, 1, 12, 0, 0, 500000000, time.UTC))
	if got, want := imjd, 51544; got != want {
		t.Fatalf("imjd: got=%d, want=%d", got, want)
	}
	if got, want := smjd, 43200; got != want {
		t.Fatalf("smjd: got=%d, want=%d", got, want)
	}
	if got, want := offs, 0.5; got != want {
		t.Fatalf("offs: got=%v, want=%v", got, want)
	}
}
