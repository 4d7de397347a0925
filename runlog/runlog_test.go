// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runlog

import (
	"context"
	"database/sql/driver"
	"strings"
	"testing"

	"github.com/go-lpc/voltage-ingest/internal/fakedb"
)

func init() {
	drvName = "fakedb"
}

func TestOpen(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open runlog: %+v", err)
	}
	defer db.Close()
}

func TestRecordStart(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open runlog: %+v", err)
	}
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Rows{}, func(ctx context.Context) error {
		err := db.RecordStart(ctx, Observation{
			ID:       42,
			PktStart: 256,
			PktStop:  512,
			SttIMJD:  58849,
			SttSMJD:  0,
			SttOffs:  0.016384,
		})
		if err != nil {
			t.Fatalf("could not record start: %+v", err)
		}

		execs := fakedb.Execs()
		if got, want := len(execs), 1; got != want {
			t.Fatalf("got=%d execs, want=%d", got, want)
		}
		if !strings.HasPrefix(execs[0].Query, "INSERT INTO observations") {
			t.Fatalf("invalid query: %q", execs[0].Query)
		}
		if got, want := execs[0].Args[0], driver.Value(int64(42)); got != want {
			t.Fatalf("got=%v, want=%v", got, want)
		}
		return nil
	})
}

func TestRecordStop(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open runlog: %+v", err)
	}
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Rows{}, func(ctx context.Context) error {
		err := db.RecordStop(ctx, 42, Stats{NPkts: 256, NDrop: 3, NLate: 1, NBogus: 0})
		if err != nil {
			t.Fatalf("could not record stop: %+v", err)
		}

		execs := fakedb.Execs()
		if got, want := len(execs), 1; got != want {
			t.Fatalf("got=%d execs, want=%d", got, want)
		}
		if !strings.HasPrefix(execs[0].Query, "UPDATE observations") {
			t.Fatalf("invalid query: %q", execs[0].Query)
		}
		return nil
	})
}

func TestLastObservation(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open runlog: %+v", err)
	}
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"id", "pktstart", "pktstop", "stt_imjd", "stt_smjd", "stt_offs"},
		Values: [][]driver.Value{
			{uint64(42), uint64(256), uint64(512), int32(58849), int32(0), 0.016384},
		},
	}, func(ctx context.Context) error {
		obs, err := db.LastObservation(ctx)
		if err != nil {
			t.Fatalf("could not retrieve last observation: %+v", err)
		}

		want := Observation{
			ID:       42,
			PktStart: 256,
			PktStop:  512,
			SttIMJD:  58849,
			SttSMJD:  0,
			SttOffs:  0.016384,
		}
		if obs != want {
			t.Fatalf("got=%+v, want=%+v", obs, want)
		}
		return nil
	})
}
