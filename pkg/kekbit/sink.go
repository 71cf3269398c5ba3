package kekbit

import (
	"fmt"
	"io"
)

// recordSink is the bounded [io.Writer] handed to the handler pipeline while
// a record is published. It writes directly into the record's payload slot
// in the mapped region and latches a failure once the slot capacity is
// exceeded. A latched sink swallows all further writes so a partially
// encoded record never grows past its slot.
type recordSink struct {
	buf    []byte
	total  int
	failed bool
}

// Compile-time interface satisfaction check.
var _ io.Writer = (*recordSink)(nil)

// reset points the sink at a new record slot and clears the latch.
func (s *recordSink) reset(buf []byte) *recordSink {
	s.buf = buf
	s.total = 0
	s.failed = false

	return s
}

// Write copies p into the record slot.
//
// Once a write exceeds the slot capacity the sink latches: the failing call
// returns an error wrapping [io.ErrShortWrite], and every later call writes
// nothing and returns (0, nil) until the next reset.
func (s *recordSink) Write(p []byte) (int, error) {
	if s.failed {
		return 0, nil
	}

	if s.total+len(p) > len(s.buf) {
		s.failed = true

		return 0, fmt.Errorf("record data %d exceeds slot capacity %d: %w", s.total+len(p), len(s.buf), io.ErrShortWrite)
	}

	copy(s.buf[s.total:], p)
	s.total += len(p)

	return len(p), nil
}
