// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package runlog records observation start/stop events and their drop
// statistics in the back-end's MySQL run database. It lives off the
// ingest hot path: callers write from configuration-time code or the
// once-per-second status tick, never while holding the status lock.
package runlog // import "github.com/go-lpc/voltage-ingest/runlog"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

var (
	drvName = "mysql"
)

// Observation is one recorded observation window.
type Observation struct {
	ID       uint64
	PktStart uint64
	PktStop  uint64
	SttIMJD  int32
	SttSMJD  int32
	SttOffs  float64
}

// Stats holds the counters published when an observation stops.
type Stats struct {
	NPkts  uint64
	NDrop  uint64
	NLate  uint64
	NBogus uint64
}

// DB exposes convenience methods to record and retrieve observation
// runs from the run database.
type DB struct {
	db  *sql.DB
	dsn string
}

// Open opens a connection to the run database described by dsn.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("runlog: could not open run db: %w", err)
	}

	err = ping(db)
	if err != nil {
		return nil, fmt.Errorf("runlog: could not ping run db: %w", err)
	}

	return &DB{db: db, dsn: dsn}, nil
}

func ping(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("runlog: could not ping run db: %w", err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// RecordStart stores the start of an observation: its recording window
// and the MJD stamped when the window was entered.
func (db *DB) RecordStart(ctx context.Context, obs Observation) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := db.db.ExecContext(
		ctx,
		`INSERT INTO observations (id, pktstart, pktstop, stt_imjd, stt_smjd, stt_offs)
VALUES (?, ?, ?, ?, ?, ?)`,
		obs.ID, obs.PktStart, obs.PktStop, obs.SttIMJD, obs.SttSMJD, obs.SttOffs,
	)
	if err != nil {
		return fmt.Errorf("runlog: could not record observation start: %w", err)
	}

	return nil
}

// RecordStop stores the end-of-observation counters for run id.
func (db *DB) RecordStop(ctx context.Context, id uint64, stats Stats) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := db.db.ExecContext(
		ctx,
		`UPDATE observations SET npkts=?, ndrop=?, nlate=?, nbogus=? WHERE id=?`,
		stats.NPkts, stats.NDrop, stats.NLate, stats.NBogus, id,
	)
	if err != nil {
		return fmt.Errorf("runlog: could not record observation stop: %w", err)
	}

	return nil
}

// LastObservation returns the most recently recorded observation.
func (db *DB) LastObservation(ctx context.Context) (Observation, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var obs Observation
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT id, pktstart, pktstop, stt_imjd, stt_smjd, stt_offs FROM observations ORDER BY id DESC LIMIT 1",
	)
	if err != nil {
		return obs, fmt.Errorf("runlog: could not query last observation: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&obs.ID, &obs.PktStart, &obs.PktStop, &obs.SttIMJD, &obs.SttSMJD, &obs.SttOffs)
		if err != nil {
			return obs, fmt.Errorf("runlog: could not get last observation: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return obs, fmt.Errorf("runlog: could not scan db for last observation: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return obs, fmt.Errorf("runlog: context error while retrieving last observation: %w", err)
	}

	return obs, nil
}
