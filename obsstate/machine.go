// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package obsstate implements the observation state machine gating
// record-vs-discard: IDLE after the capture destination is torn down
// (DESTIP reset to 0.0.0.0), LISTEN while packets flow outside the
// recording window, RECORD inside it. A new machine starts in LISTEN,
// not IDLE, whatever DESTIP holds at startup.
package obsstate // import "github.com/go-lpc/voltage-ingest/obsstate"

import (
	"math"
	"time"

	"github.com/go-lpc/voltage-ingest/statusbuf"
)

// State is one of the three observation run states.
type State int

const (
	Idle State = iota
	Listen
	Record
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Listen:
		return "LISTEN"
	case Record:
		return "RECORD"
	}
	return "UNKNOWN"
}

// Machine tracks the current run state. Transitions between LISTEN and
// RECORD are driven entirely by the status buffer's PKTSTART/PKTSTOP
// window; transitions to and from IDLE by the DESTIP field.
type Machine struct {
	state State
}

// NewMachine returns a machine in the LISTEN state.
func NewMachine() *Machine {
	return &Machine{state: Listen}
}

// State returns the current run state.
func (m *Machine) State() State { return m.state }

// SetIdle parks the machine in IDLE and publishes DAQSTATE.
func (m *Machine) SetIdle(sb *statusbuf.Buffer) {
	m.state = Idle
	sb.Locked(func(s *statusbuf.Store) {
		s.SetStr(statusbuf.KeyDAQState, Idle.String())
		s.SetUint(statusbuf.KeySttValid, 0)
	})
}

// SetListen moves the machine out of IDLE and publishes DAQSTATE.
func (m *Machine) SetListen(sb *statusbuf.Buffer) {
	m.state = Listen
	sb.Locked(func(s *statusbuf.Store) {
		s.SetStr(statusbuf.KeyDAQState, Listen.String())
	})
}

// CheckStartStop checks pktidx against the status buffer's recording
// window and updates the run state:
//
//	if PKTSTART <= pktidx < PKTSTOP
//	  if STTVALID == 0: compute and store STT_IMJD/STT_SMJD/STT_OFFS, STTVALID=1
//	  -> RECORD
//	else
//	  STTVALID=0
//	  -> LISTEN
//
// The MJD of the observation start is computed from SYNCTIME and the
// packet cadence the first time the window is entered.
func (m *Machine) CheckStartStop(sb *statusbuf.Buffer, pktidx uint64) State {
	state := Listen

	sb.Locked(func(s *statusbuf.Store) {
		sttvalid, _ := s.Uint(statusbuf.KeySttValid)
		pktstart, _ := s.Uint(statusbuf.KeyPktStart)
		pktstop, _ := s.Uint(statusbuf.KeyPktStop)

		if pktstart <= pktidx && pktidx < pktstop {
			state = Record
			s.SetStr(statusbuf.KeyDAQState, Record.String())

			if sttvalid != 1 {
				s.SetUint(statusbuf.KeySttValid, 1)

				pktntime, ok := s.Uint(statusbuf.KeyPktNTime)
				if !ok {
					pktntime = 1
				}
				chanBW, ok := s.Float(statusbuf.KeyChanBW)
				if !ok || chanBW == 0 {
					chanBW = 1
				}
				synctime, _ := s.Uint(statusbuf.KeySyncTime)

				// realtime seconds since SYNCTIME for pktidx:
				//
				//     pktidx * pktntime / (1e6 * |chan_bw|)
				secs := float64(pktidx) * float64(pktntime) / (1e6 * math.Abs(chanBW))

				sec := int64(synctime) + int64(math.Round(secs))
				nsec := int64((secs - math.Round(secs)) * 1e9)
				imjd, smjd, offs := timeToMJD(time.Unix(sec, nsec).UTC())

				s.SetInt(statusbuf.KeySttIMJD, int64(imjd))
				s.SetInt(statusbuf.KeySttSMJD, int64(smjd))
				s.SetFloat(statusbuf.KeySttOffs, offs)
			}
		} else {
			s.SetStr(statusbuf.KeyDAQState, Listen.String())
			if sttvalid != 0 {
				s.SetUint(statusbuf.KeySttValid, 0)
			}
		}
	})

	m.state = state
	return state
}
