// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obsstate

import "time"

// mjdEpoch is the Modified Julian Date of the Unix epoch (1970-01-01).
const mjdEpoch = 40587

// timeToMJD converts t to a Modified Julian Date encoded as integer day,
// integer second of day and fractional second.
func timeToMJD(t time.Time) (imjd, smjd int, offs float64) {
	sec := t.Unix()
	day := sec / 86400
	imjd = int(day + mjdEpoch)
	smjd = int(sec - day*86400)
	offs = float64(t.Nanosecond()) / 1e9
	return imjd, smjd, offs
}
