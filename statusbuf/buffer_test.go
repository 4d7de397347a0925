// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package statusbuf

import (
	"bytes"
	"testing"
)

func TestStore(t *testing.T) {
	sb := New()

	sb.Locked(func(s *Store) {
		s.SetStr(KeyDAQState, "LISTEN")
		s.SetUint(KeyPktIdx, 1024)
		s.SetInt(KeySChan, -4)
		s.SetFloat(KeyChanBW, 0.25)
	})

	sb.Locked(func(s *Store) {
		if got, ok := s.Str(KeyDAQState); !ok || got != "LISTEN" {
			t.Fatalf("got=%q (ok=%v), want=%q", got, ok, "LISTEN")
		}
		if got, ok := s.Uint(KeyPktIdx); !ok || got != 1024 {
			t.Fatalf("got=%d (ok=%v), want=%d", got, ok, 1024)
		}
		if got, ok := s.Int(KeySChan); !ok || got != -4 {
			t.Fatalf("got=%d (ok=%v), want=%d", got, ok, -4)
		}
		if got, ok := s.Float(KeyChanBW); !ok || got != 0.25 {
			t.Fatalf("got=%v (ok=%v), want=%v", got, ok, 0.25)
		}
		if _, ok := s.Str("NOPE"); ok {
			t.Fatalf("expected missing key")
		}
	})
}

func TestStoreOverwrite(t *testing.T) {
	sb := New()

	sb.Locked(func(s *Store) {
		s.SetUint(KeyNPkts, 1)
		s.SetUint(KeyNPkts, 2)
	})

	sb.Locked(func(s *Store) {
		if got, _ := s.Uint(KeyNPkts); got != 2 {
			t.Fatalf("got=%d, want=%d", got, 2)
		}
	})

	if got, want := len(sb.keys), 1; got != want {
		t.Fatalf("invalid number of keys: got=%d, want=%d", got, want)
	}
}

func TestSnapshot(t *testing.T) {
	sb := New()

	sb.Locked(func(s *Store) {
		s.SetStr(KeyDAQState, "RECORD")
		s.SetUint(KeyPktIdx, 128)
	})

	var snap []byte
	sb.Locked(func(s *Store) {
		snap = s.Snapshot()
	})

	if got, want := len(snap), TotalSize; got != want {
		t.Fatalf("invalid snapshot size: got=%d, want=%d", got, want)
	}

	card0 := string(snap[0*CardSize : 1*CardSize])
	if got, want := card0[:10], "DAQSTATE= "; got != want {
		t.Fatalf("invalid card: got=%q, want=%q", got, want)
	}
	if !bytes.Contains(snap[:CardSize], []byte("'RECORD  '")) {
		t.Fatalf("missing quoted value in %q", card0)
	}

	card1 := string(snap[1*CardSize : 2*CardSize])
	if !bytes.Contains([]byte(card1), []byte("PKTIDX  = ")) {
		t.Fatalf("invalid card: %q", card1)
	}

	card2 := string(snap[2*CardSize : 3*CardSize])
	if got, want := card2[:3], "END"; got != want {
		t.Fatalf("missing END card: got=%q", got)
	}
}
