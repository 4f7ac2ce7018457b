// Package testutil provides deterministic stand-ins for the capture
// pipeline's injectable dependencies.
package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDGenerator generates "test-session-000001", "test-session-000002", ...
//
// Deterministic ids make session-identity assertions and golden output
// stable across runs.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type SequenceIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDGenerator creates a generator with the given prefix.
// An empty prefix defaults to "test-session".
func NewSequenceIDGenerator(prefix string) *SequenceIDGenerator {
	if prefix == "" {
		prefix = "test-session"
	}
	return &SequenceIDGenerator{prefix: prefix}
}

// Generate returns the next id in the sequence.
// Implements capture.IDGenerator.
func (g *SequenceIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%06d", g.prefix, g.n)
}

// Count returns how many ids have been generated.
func (g *SequenceIDGenerator) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

// FixedDraw returns a sample-draw function that always yields v.
// Use with capture.Options.Draw to make admission deterministic.
func FixedDraw(v float64) func() float64 {
	return func() float64 { return v }
}
