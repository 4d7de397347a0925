// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package statusbuf implements the shared key/value status area through
// which the ingest loop and out-of-band operator control exchange
// observation parameters and counters.
package statusbuf // import "github.com/go-lpc/voltage-ingest/statusbuf"

import (
	"fmt"
	"strconv"
	"sync"
)

const (
	// CardSize is the size in bytes of one fixed-width key/value record.
	CardSize = 80
	// TotalSize is the size in bytes of a serialized status buffer, the
	// amount copied into a block's header region.
	TotalSize = 2880 * 64
)

// Buffer is a process-wide key/value area protected by a single mutex.
// All multi-field reads and writes are performed under one acquisition
// through Locked.
type Buffer struct {
	mu   sync.Mutex
	keys []string // insertion order, for stable serialization
	vals map[string]entry
}

type entry struct {
	val    string
	quoted bool // string-valued card, serialized in quotes
}

// New returns an empty status buffer.
func New() *Buffer {
	return &Buffer{
		vals: make(map[string]entry),
	}
}

// Locked runs fn with the buffer lock held. fn must not perform I/O nor
// block on the packet or block rings while the lock is held.
func (sb *Buffer) Locked(fn func(s *Store)) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	fn(&Store{buf: sb})
}

// Store gives locked access to the buffer's cards. It is only valid for
// the duration of the Locked call that produced it.
type Store struct {
	buf *Buffer
}

func (s *Store) put(key, val string, quoted bool) {
	if _, ok := s.buf.vals[key]; !ok {
		s.buf.keys = append(s.buf.keys, key)
	}
	s.buf.vals[key] = entry{val: val, quoted: quoted}
}

// SetStr stores a string-valued card.
func (s *Store) SetStr(key, val string) { s.put(key, val, true) }

// SetInt stores an integer-valued card.
func (s *Store) SetInt(key string, v int64) { s.put(key, strconv.FormatInt(v, 10), false) }

// SetUint stores an unsigned integer-valued card.
func (s *Store) SetUint(key string, v uint64) { s.put(key, strconv.FormatUint(v, 10), false) }

// SetFloat stores a floating-point card.
func (s *Store) SetFloat(key string, v float64) { s.put(key, formatFloat(v), false) }

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'G', -1, 64)
}

// Str returns the string value of key, if present.
func (s *Store) Str(key string) (string, bool) {
	e, ok := s.buf.vals[key]
	return e.val, ok
}

// Int returns the integer value of key, if present and well-formed.
func (s *Store) Int(key string) (int64, bool) {
	e, ok := s.buf.vals[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(e.val, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Uint returns the unsigned integer value of key, if present and well-formed.
func (s *Store) Uint(key string) (uint64, bool) {
	e, ok := s.buf.vals[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(e.val, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Float returns the floating-point value of key, if present and well-formed.
func (s *Store) Float(key string) (float64, bool) {
	e, ok := s.buf.vals[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(e.val, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Snapshot serializes the buffer into the fixed-width card format that
// block headers embed. It must be called with the lock held, i.e. from
// within a Locked callback.
func (s *Store) Snapshot() []byte {
	return s.buf.snapshotLocked()
}

func (sb *Buffer) snapshotLocked() []byte {
	buf := make([]byte, TotalSize)
	for i := range buf {
		buf[i] = ' '
	}

	pos := 0
	for _, key := range sb.keys {
		if pos+2*CardSize > TotalSize {
			break
		}
		e := sb.vals[key]
		val := e.val
		if e.quoted {
			val = fmt.Sprintf("'%-8s'", val)
		} else {
			val = fmt.Sprintf("%20s", val)
		}
		card := fmt.Sprintf("%-8s= %s", key, val)
		copy(buf[pos:pos+CardSize], card)
		pos += CardSize
	}
	copy(buf[pos:pos+CardSize], "END")
	return buf
}
