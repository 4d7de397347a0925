// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ingest

import (
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/go-lpc/voltage-ingest/statusbuf"
)

func TestControlServer(t *testing.T) {
	sb := statusbuf.New()
	sb.Locked(func(s *statusbuf.Store) {
		s.SetStr(statusbuf.KeyDAQState, "LISTEN")
		s.SetUint(statusbuf.KeyPktIdx, 1024)
	})

	srv, err := NewServer("127.0.0.1:0", sb)
	if err != nil {
		t.Fatalf("could not create control server: %+v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("could not dial control server: %+v", err)
	}
	defer conn.Close()

	var (
		enc = json.NewEncoder(conn)
		dec = json.NewDecoder(conn)
	)

	send := func(req Request) Reply {
		t.Helper()
		if err := enc.Encode(req); err != nil {
			t.Fatalf("could not send %q: %+v", req.Name, err)
		}
		var rep Reply
		if err := dec.Decode(&rep); err != nil {
			t.Fatalf("could not decode %q reply: %+v", req.Name, err)
		}
		return rep
	}

	rep := send(Request{Name: "start", Args: []string{"256", "300"}})
	if rep.Err != "" {
		t.Fatalf("start failed: %q", rep.Err)
	}
	sb.Locked(func(s *statusbuf.Store) {
		if v, _ := s.Uint(statusbuf.KeyPktStart); v != 256 {
			t.Fatalf("PKTSTART=%d, want=256", v)
		}
		if v, _ := s.Float(statusbuf.KeyDwell); v != 300 {
			t.Fatalf("DWELL=%v, want=300", v)
		}
	})

	rep = send(Request{Name: "destip", Args: []string{"10.0.0.1+3"}})
	if rep.Err != "" {
		t.Fatalf("destip failed: %q", rep.Err)
	}

	rep = send(Request{Name: "status"})
	if rep.Err != "" {
		t.Fatalf("status failed: %q", rep.Err)
	}
	if got, want := rep.Data[statusbuf.KeyDAQState], "LISTEN"; got != want {
		t.Fatalf("got=%q, want=%q", got, want)
	}
	if got, want := rep.Data[statusbuf.KeyPktIdx], "1024"; got != want {
		t.Fatalf("got=%q, want=%q", got, want)
	}
	if got, want := rep.Data[statusbuf.KeyDestIP], "10.0.0.1+3"; got != want {
		t.Fatalf("got=%q, want=%q", got, want)
	}

	rep = send(Request{Name: "stop"})
	if rep.Err != "" {
		t.Fatalf("stop failed: %q", rep.Err)
	}
	sb.Locked(func(s *statusbuf.Store) {
		if v, _ := s.Uint(statusbuf.KeyPktStop); v != 0 {
			t.Fatalf("PKTSTOP=%d, want=0", v)
		}
	})

	rep = send(Request{Name: "bogus"})
	if rep.Err == "" {
		t.Fatalf("expected an error for an unknown command")
	}

	cancel()
	<-done
}
