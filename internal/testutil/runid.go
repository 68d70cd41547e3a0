package testutil

import (
	"fmt"
	"sync"
)

// SequentialRunIDs generates "<prefix>-1", "<prefix>-2", ... and never runs
// out. It satisfies engine.RunIDGenerator.
//
// The same scenario with a fresh SequentialRunIDs produces identical run IDs,
// and therefore identical materialization IDs.
type SequentialRunIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialRunIDs creates a generator. An empty prefix means "run".
func NewSequentialRunIDs(prefix string) *SequentialRunIDs {
	if prefix == "" {
		prefix = "run"
	}
	return &SequentialRunIDs{prefix: prefix}
}

// Generate returns the next run ID.
func (g *SequentialRunIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
