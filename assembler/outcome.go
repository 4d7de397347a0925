// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package assembler

// Outcome reports what Feed did with a packet's block number.
type Outcome int

const (
	// Scattered: the packet fell inside the current window.
	Scattered Outcome = iota
	// Advanced: the window slid forward one block; W[0] was finalized.
	Advanced
	// Late: the packet's block precedes the window by one; dropped.
	Late
	// Reinit: the packet's block was far outside the window; the window
	// was renumbered to follow it and the packet itself dropped.
	Reinit
)

func (o Outcome) String() string {
	switch o {
	case Scattered:
		return "scattered"
	case Advanced:
		return "advanced"
	case Late:
		return "late"
	case Reinit:
		return "reinit"
	}
	return "unknown"
}
