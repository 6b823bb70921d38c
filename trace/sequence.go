package trace

import "sync/atomic"

// Sequence allocates process-wide event sequence numbers. Numbers are
// strictly increasing from 1 and never reused for the lifetime of the
// allocator; there is no cross-restart persistence. Construct one per
// registry and share it by reference rather than relying on package state.
//
// The zero value is ready to use.
type Sequence struct {
	n atomic.Int64
}

// NewSequence returns a fresh allocator whose first Next call yields 1.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next returns the next sequence number. Safe for concurrent use.
func (s *Sequence) Next() int64 {
	return s.n.Add(1)
}

// Current returns the most recently allocated number, or 0 when Next has
// never been called. Intended for diagnostics and tests.
func (s *Sequence) Current() int64 {
	return s.n.Load()
}
