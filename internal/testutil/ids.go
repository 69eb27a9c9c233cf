package testutil

import (
	"sync"
	"time"
)

// FixedIDGenerator returns predetermined emergency ids in order.
//
// Example:
//
//	gen := NewFixedIDGenerator("EMG-1", "EMG-2")
//	gen.Generate(now) // "EMG-1"
//	gen.Generate(now) // "EMG-2"
//	gen.Generate(now) // panic: all ids exhausted
type FixedIDGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedIDGenerator creates a generator over ids.
func NewFixedIDGenerator(ids ...string) *FixedIDGenerator {
	return &FixedIDGenerator{ids: ids}
}

// Generate returns the next id, ignoring now. Panics when exhausted so a
// test that builds more records than it scripted fails loudly.
func (g *FixedIDGenerator) Generate(time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic("FixedIDGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// Calls returns how many ids were handed out.
func (g *FixedIDGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.idx
}
