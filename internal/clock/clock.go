package clock

import (
	"sync/atomic"
	"time"
)

// Clock reports the current wall time.
type Clock interface {
	Now() time.Time
}

// System is the real wall clock, in UTC.
type System struct{}

// Now returns time.Now in UTC.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Seq is a monotonic logical clock. Every call to Next returns a strictly
// larger value; it is safe for concurrent use.
type Seq struct {
	n atomic.Int64
}

// NewSeq creates a sequence starting at 0. The first Next returns 1.
func NewSeq() *Seq {
	return &Seq{}
}

// NewSeqAt creates a sequence resuming after start.
func NewSeqAt(start int64) *Seq {
	s := &Seq{}
	s.n.Store(start)
	return s
}

// Next returns the next sequence number.
func (s *Seq) Next() int64 {
	return s.n.Add(1)
}

// Current returns the last issued number without advancing.
func (s *Seq) Current() int64 {
	return s.n.Load()
}
