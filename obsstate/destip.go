// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obsstate

import (
	"encoding/binary"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// FlowInstaller is implemented by packet sources that can steer one or
// more destination IPs toward the capture ring.
type FlowInstaller interface {
	InstallFlow(idx int, ip net.IP, port uint16) error
	RemoveFlow(idx int) error
}

// ParseDestIP parses the DESTIP notation "A.B.C.D" or "A.B.C.D+N": the
// base IPv4 destination and the number of contiguous destinations
// (N+1, or 1 when no +N suffix is given).
func ParseDestIP(s string) (net.IP, int, error) {
	base, suffix, found := strings.Cut(s, "+")
	ip := net.ParseIP(base)
	if ip == nil || ip.To4() == nil {
		return nil, 0, fmt.Errorf("obsstate: invalid DESTIP %q", s)
	}
	n := 1
	if found {
		v, err := strconv.ParseUint(suffix, 0, 32)
		if err != nil {
			return nil, 0, fmt.Errorf("obsstate: invalid DESTIP stream count %q: %w", s, err)
		}
		n = int(v) + 1
	}
	return ip.To4(), n, nil
}

// Flows manages the set of capture flows installed on a packet source
// from the status buffer's DESTIP field.
type Flows struct {
	msg       *log.Logger
	installer FlowInstaller
	maxFlows  int
	port      uint16

	destIP string // last accepted DESTIP value
	n      int    // number of active flows
}

// NewFlows returns a flow manager with no active flows.
func NewFlows(installer FlowInstaller, maxFlows int, port uint16, msg *log.Logger) *Flows {
	if msg == nil {
		msg = log.New(os.Stdout, "obsstate: ", 0)
	}
	return &Flows{
		msg:       msg,
		installer: installer,
		maxFlows:  maxFlows,
		port:      port,
		destIP:    "0.0.0.0",
	}
}

// Active returns the number of currently installed flows.
func (f *Flows) Active() int { return f.n }

// DestIP returns the last accepted DESTIP value.
func (f *Flows) DestIP() string { return f.destIP }

// Update applies a DESTIP change. While flows are active the only
// accepted change is to "0.0.0.0" (teardown); any other change is
// rejected and the old value kept. Installing "A.B.C.D+N" adds N+1
// contiguous destinations, clamped to the flow manager's MAXFLOWS.
func (f *Flows) Update(destIP string) error {
	if destIP == f.destIP {
		return nil
	}

	if f.n > 0 && destIP != "0.0.0.0" {
		return fmt.Errorf(
			"obsstate: already listening to %s, can't switch to %s",
			f.destIP, destIP,
		)
	}

	if destIP == "0.0.0.0" {
		f.msg.Printf("dest_ip %s (removing %d flows)", destIP, f.n)
		var grp errgroup.Group
		for idx := 0; idx < f.n; idx++ {
			idx := idx
			grp.Go(func() error {
				return f.installer.RemoveFlow(idx)
			})
		}
		if err := grp.Wait(); err != nil {
			return fmt.Errorf("obsstate: could not remove flows: %w", err)
		}
		f.n = 0
		f.destIP = destIP
		return nil
	}

	ip, n, err := ParseDestIP(destIP)
	if err != nil {
		return err
	}
	if n > f.maxFlows {
		n = f.maxFlows
	}

	f.msg.Printf("dest_ip %s (adding %d flows)", destIP, n)
	var grp errgroup.Group
	for idx := 0; idx < n; idx++ {
		idx := idx
		grp.Go(func() error {
			return f.installer.InstallFlow(idx, nthIP(ip, idx), f.port)
		})
	}
	if err := grp.Wait(); err != nil {
		return fmt.Errorf("obsstate: could not install flows: %w", err)
	}
	f.n = n
	f.destIP = destIP
	return nil
}

// nthIP returns base+n as an IPv4 address.
func nthIP(base net.IP, n int) net.IP {
	v := binary.BigEndian.Uint32(base.To4()) + uint32(n)
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, v)
	return ip
}
