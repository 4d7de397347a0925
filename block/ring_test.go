// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import (
	"errors"
	"testing"
	"time"
)

func TestRing(t *testing.T) {
	ring, err := NewRing(2, 1024)
	if err != nil {
		t.Fatalf("could not create ring: %+v", err)
	}
	defer ring.Close()

	if got, want := ring.NumBlocks(), 2; got != want {
		t.Fatalf("got=%d, want=%d", got, want)
	}
	if got, want := ring.DataSize(), 1024; got != want {
		t.Fatalf("got=%d, want=%d", got, want)
	}
	if got, want := len(ring.Data(1)), 1024; got != want {
		t.Fatalf("got=%d, want=%d", got, want)
	}
	if got, want := len(ring.Header(0)), HeaderSize; got != want {
		t.Fatalf("got=%d, want=%d", got, want)
	}

	err = ring.WaitFree(0, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("could not claim free slot: %+v", err)
	}
	if got, want := ring.NumFilled(), 1; got != want {
		t.Fatalf("got=%d used slots, want=%d", got, want)
	}

	// slot 0 is processing: claiming it again times out.
	err = ring.WaitFree(0, 10*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got=%+v, want=%+v", err, ErrTimeout)
	}

	// not filled yet.
	err = ring.WaitFilled(0, 10*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got=%+v, want=%+v", err, ErrTimeout)
	}

	ring.SetFilled(0)
	err = ring.WaitFilled(0, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("could not wait for filled slot: %+v", err)
	}

	ring.SetFree(0)
	err = ring.WaitFree(0, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("could not re-claim recycled slot: %+v", err)
	}
}

func TestRingBackpressure(t *testing.T) {
	ring, err := NewRing(1, 64)
	if err != nil {
		t.Fatalf("could not create ring: %+v", err)
	}
	defer ring.Close()

	err = ring.WaitFree(0, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("could not claim slot: %+v", err)
	}
	ring.SetFilled(0)

	// consumer frees the slot while a producer blocks on it.
	go func() {
		time.Sleep(30 * time.Millisecond)
		ring.SetFree(0)
	}()

	err = ring.WaitFree(0, 1*time.Second)
	if err != nil {
		t.Fatalf("could not wait for consumer: %+v", err)
	}
}

func TestNewRingInvalid(t *testing.T) {
	if _, err := NewRing(0, 64); err == nil {
		t.Fatalf("expected an error for zero capacity")
	}
	if _, err := NewRing(2, 0); err == nil {
		t.Fatalf("expected an error for zero data size")
	}
}
