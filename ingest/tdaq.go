// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ingest

import (
	"github.com/go-daq/tdaq"
)

// Node adapts a Loop to the tdaq run-control protocol, so the ingest
// registers itself with the host pipeline runtime. The tdaq commands
// are operator-visible but advisory: run-state transitions remain
// driven by the status buffer's DESTIP and PKTSTART/PKTSTOP fields.
type Node struct {
	loop *Loop
}

// NewNode wraps loop for tdaq registration.
func NewNode(loop *Loop) *Node {
	return &Node{loop: loop}
}

func (n *Node) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	return nil
}

func (n *Node) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	return nil
}

func (n *Node) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	return nil
}

func (n *Node) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command...")
	return nil
}

func (n *Node) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	return nil
}

// Run drives the ingest loop under the tdaq server's context.
func (n *Node) Run(ctx tdaq.Context) error {
	return n.loop.Run(ctx.Ctx)
}
