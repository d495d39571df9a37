package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates predictable envelope ids: "<prefix>-1", "<prefix>-2", ...
//
// This enables golden comparison of queue contents across runs.
//
// Thread-safety: SequenceIDs is safe for concurrent use.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs creates a generator. An empty prefix uses "sub".
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "sub"
	}
	return &SequenceIDs{prefix: prefix}
}

// Generate returns the next id.
//
// Implements queue.IDGenerator.
func (g *SequenceIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
