// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obsinfo

// Option configures an ObsInfo built with New.
type Option func(*ObsInfo)

// WithNAnts sets NANTS.
func WithNAnts(n uint32) Option {
	return func(o *ObsInfo) { o.NAnts = n }
}

// WithNStrm sets NSTRM.
func WithNStrm(n uint32) Option {
	return func(o *ObsInfo) { o.NStrm = n }
}

// WithPktNChan sets PKTNCHAN.
func WithPktNChan(n uint32) Option {
	return func(o *ObsInfo) { o.PktNChan = n }
}

// WithPktNTime sets PKTNTIME.
func WithPktNTime(n uint32) Option {
	return func(o *ObsInfo) { o.PktNTime = n }
}

// WithFEngChan sets FENCHAN.
func WithFEngChan(n uint32) Option {
	return func(o *ObsInfo) { o.FEngChan = n }
}

// WithSChan sets SCHAN.
func WithSChan(n int32) Option {
	return func(o *ObsInfo) { o.SChan = n }
}

// WithNPol sets NPOL.
func WithNPol(n uint32) Option {
	return func(o *ObsInfo) { o.NPol = n }
}

// WithNBits sets NBITS.
func WithNBits(n uint32) Option {
	return func(o *ObsInfo) { o.NBits = n }
}
