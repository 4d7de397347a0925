// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ingestd runs the UDP voltage-ingest daemon: it registers with
// the TDAQ pipeline runtime, captures F-engine packets, assembles them
// into raw voltage blocks and drains them to a GUPPI-RAW style file.
//
// Usage: ingestd [tdaq-flags] [bind-addr] [ctl-addr] [output-file]
//
// All observation configuration flows through the status buffer, via
// the JSON control server listening on ctl-addr.
package main // import "github.com/go-lpc/voltage-ingest/cmd/ingestd"

import (
	"context"
	"log"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"golang.org/x/sync/errgroup"

	"github.com/go-lpc/voltage-ingest/block"
	"github.com/go-lpc/voltage-ingest/ingest"
	"github.com/go-lpc/voltage-ingest/obsstate"
	"github.com/go-lpc/voltage-ingest/rawconsumer"
	"github.com/go-lpc/voltage-ingest/statusbuf"
	"github.com/go-lpc/voltage-ingest/udpsource"
)

const (
	blockDataSize = 32 << 20 // bytes of voltage data per output block
	numOutBlocks  = 8
	maxFlows      = 16
	bindPort      = 4015
)

func main() {
	cmd := flags.New()

	var (
		bind    = ":4015"
		ctlAddr = ":8866"
		outName = "ingest.raw"
	)
	switch {
	case len(cmd.Args) > 2:
		outName = cmd.Args[2]
		fallthrough
	case len(cmd.Args) > 1:
		ctlAddr = cmd.Args[1]
		fallthrough
	case len(cmd.Args) > 0:
		bind = cmd.Args[0]
	}

	msg := log.New(os.Stdout, "ingestd: ", 0)

	dev, err := newDaemon(bind, ctlAddr, outName, msg)
	if err != nil {
		msg.Fatalf("could not create ingest daemon: %+v", err)
	}

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.node.OnConfig)
	srv.CmdHandle("/init", dev.node.OnInit)
	srv.CmdHandle("/start", dev.node.OnStart)
	srv.CmdHandle("/stop", dev.node.OnStop)
	srv.CmdHandle("/quit", dev.node.OnQuit)

	srv.RunHandle(dev.run)

	err = srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

type daemon struct {
	msg  *log.Logger
	src  *udpsource.Source
	cons *rawconsumer.Consumer
	ctl  *ingest.Server
	loop *ingest.Loop
	node *ingest.Node
}

func newDaemon(bind, ctlAddr, outName string, msg *log.Logger) (*daemon, error) {
	src, err := udpsource.New(bind,
		udpsource.WithLogger(msg),
		udpsource.WithRing(8, 2048, 8192),
	)
	if err != nil {
		return nil, err
	}

	ring, err := block.NewRing(numOutBlocks, blockDataSize)
	if err != nil {
		return nil, err
	}

	sb := statusBuffer()
	cons, err := rawconsumer.New(outName, ring, msg)
	if err != nil {
		return nil, err
	}

	ctl, err := ingest.NewServer(ctlAddr, sb)
	if err != nil {
		return nil, err
	}

	flows := obsstate.NewFlows(src, maxFlows, bindPort, msg)
	loop, err := ingest.New(sb, src, ring, flows, obsstate.NewMachine(),
		ingest.WithLogger(msg),
		ingest.WithBindPort(bindPort),
	)
	if err != nil {
		return nil, err
	}

	return &daemon{
		msg:  msg,
		src:  src,
		cons: cons,
		ctl:  ctl,
		loop: loop,
		node: ingest.NewNode(loop),
	}, nil
}

func statusBuffer() *statusbuf.Buffer {
	sb := statusbuf.New()
	sb.Locked(func(s *statusbuf.Store) {
		s.SetUint(statusbuf.KeyMaxFlows, maxFlows)
		s.SetStr(statusbuf.KeyDestIP, "0.0.0.0")
	})
	return sb
}

// run drives the capture, ingest, consumer and control threads under
// the tdaq server's context.
func (dev *daemon) run(ctx tdaq.Context) error {
	grp, gctx := errgroup.WithContext(ctx.Ctx)
	grp.Go(func() error { return dev.src.Run(gctx) })
	grp.Go(func() error { return dev.cons.Run(gctx) })
	grp.Go(func() error { return dev.ctl.Serve(gctx) })
	grp.Go(func() error { return dev.loop.Run(gctx) })
	return grp.Wait()
}
