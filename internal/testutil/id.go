package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDGenerator produces predictable IDs ("test-1", "test-2", ...)
// for deterministic golden files and assertions. Implements the engine's
// IDGenerator interface.
type SequentialIDGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewSequentialIDGenerator creates a generator with the given prefix.
// An empty prefix defaults to "test".
func NewSequentialIDGenerator(prefix string) *SequentialIDGenerator {
	if prefix == "" {
		prefix = "test"
	}
	return &SequentialIDGenerator{prefix: prefix}
}

// NewID returns the next sequential ID.
func (g *SequentialIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next)
}
