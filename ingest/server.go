// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/go-lpc/voltage-ingest/statusbuf"
)

// Server is the out-of-band operator control surface: a TCP listener
// speaking newline-delimited JSON requests. Every command only reads or
// writes status-buffer cards; the ingest loop picks up the changes at
// its next tick, so control never touches the hot path directly.
type Server struct {
	ctl net.Listener
	msg *log.Logger
	sb  *statusbuf.Buffer
}

// Serve runs a control server on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, sb *statusbuf.Buffer) error {
	srv, err := NewServer(addr, sb)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// NewServer creates a control server listening on addr.
func NewServer(addr string, sb *statusbuf.Buffer) (*Server, error) {
	ctl, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ingest: could not create control server on %q: %w", addr, err)
	}
	return &Server{
		ctl: ctl,
		msg: log.New(os.Stdout, "ingest-ctl: ", 0),
		sb:  sb,
	}, nil
}

// Addr returns the address the server listens on.
func (srv *Server) Addr() string { return srv.ctl.Addr().String() }

// Serve accepts operator connections until ctx is cancelled.
func (srv *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = srv.ctl.Close()
	}()

	for {
		conn, err := srv.ctl.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("ingest: could not accept connection: %w", err)
		}
		go srv.handle(conn)
	}
}

// Request is one operator command.
type Request struct {
	Name string   `json:"name"`
	Args []string `json:"args,omitempty"`
}

// Reply is the server's answer to a Request.
type Reply struct {
	Msg  string            `json:"msg"`
	Err  string            `json:"err,omitempty"`
	Data map[string]string `json:"data,omitempty"`
}

func (srv *Server) handle(conn net.Conn) {
	defer conn.Close()
	srv.msg.Printf("serving %v...", conn.RemoteAddr())
	defer srv.msg.Printf("serving %v... [done]", conn.RemoteAddr())

	dec := json.NewDecoder(conn)
	for {
		var req Request
		err := dec.Decode(&req)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				srv.msg.Printf("could not decode command request: %+v", err)
			}
			return
		}

		rep := srv.dispatch(req)
		if err := json.NewEncoder(conn).Encode(rep); err != nil {
			srv.msg.Printf("could not encode reply: %+v", err)
			return
		}
	}
}

func (srv *Server) dispatch(req Request) Reply {
	switch strings.ToLower(req.Name) {
	case "destip":
		if len(req.Args) != 1 {
			return Reply{Err: "destip wants exactly one argument"}
		}
		srv.sb.Locked(func(s *statusbuf.Store) {
			s.SetStr(statusbuf.KeyDestIP, req.Args[0])
		})
		return Reply{Msg: "ok"}

	case "start":
		if len(req.Args) != 2 {
			return Reply{Err: "start wants <pktstart> <dwell>"}
		}
		pktstart, err := strconv.ParseUint(req.Args[0], 10, 64)
		if err != nil {
			return Reply{Err: fmt.Sprintf("invalid pktstart %q", req.Args[0])}
		}
		dwell, err := strconv.ParseFloat(req.Args[1], 64)
		if err != nil {
			return Reply{Err: fmt.Sprintf("invalid dwell %q", req.Args[1])}
		}
		srv.sb.Locked(func(s *statusbuf.Store) {
			s.SetUint(statusbuf.KeyPktStart, pktstart)
			s.SetFloat(statusbuf.KeyDwell, dwell)
		})
		return Reply{Msg: "ok"}

	case "stop":
		srv.sb.Locked(func(s *statusbuf.Store) {
			s.SetUint(statusbuf.KeyPktStart, 0)
			s.SetUint(statusbuf.KeyPktStop, 0)
			s.SetFloat(statusbuf.KeyDwell, 0)
		})
		return Reply{Msg: "ok"}

	case "status":
		data := make(map[string]string)
		srv.sb.Locked(func(s *statusbuf.Store) {
			for _, key := range []string{
				statusbuf.KeyDAQState,
				statusbuf.KeyDAQPulse,
				statusbuf.KeyNetStat,
				statusbuf.KeyPktIdx,
				statusbuf.KeyNPkts,
				statusbuf.KeyNDrop,
				statusbuf.KeyNLate,
				statusbuf.KeyNBogus,
				statusbuf.KeyObsInfo,
				statusbuf.KeyDestIP,
			} {
				if v, ok := s.Str(key); ok {
					data[key] = v
				}
			}
		})
		return Reply{Msg: "ok", Data: data}

	default:
		srv.msg.Printf("unknown command name=%q, args=%q", req.Name, req.Args)
		return Reply{Err: fmt.Sprintf("unknown command %q", req.Name)}
	}
}
