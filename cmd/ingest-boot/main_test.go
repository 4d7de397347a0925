// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"os/exec"
	"testing"
	"time"
)

func TestRun(t *testing.T) {
	for _, tc := range []struct {
		name string
		cmds []*exec.Cmd
		stop bool
	}{
		{
			name: "simple",
			cmds: []*exec.Cmd{
				exec.Command("true"),
				exec.Command("true"),
			},
		},
		{
			name: "simple-stop",
			cmds: []*exec.Cmd{
				exec.Command("sleep", "30"),
				exec.Command("sleep", "30"),
			},
			stop: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()

			stop := make(chan os.Signal, 1)
			if tc.stop {
				go func() {
					time.Sleep(500 * time.Millisecond)
					stop <- os.Interrupt
				}()
			}
			err := run(false, 1*time.Second, tc.cmds, dir, stop)
			if err != nil {
				t.Fatalf("could not run processes: %+v", err)
			}
		})
	}
}
