// Package serial provides the single-writer gate.
//
// The ledger's numeric and structural invariants (dense append indices,
// aggregate consistency) assume one mutating operation runs to completion
// before the next begins. Every mutating service call passes through one
// shared Gate; read paths never take it.
package serial

import (
	"context"
	"sync"
)

// Gate serializes mutating operations.
type Gate struct {
	mu sync.Mutex
}

// NewGate returns a Gate. One instance is shared by all mutating services.
func NewGate() *Gate {
	return &Gate{}
}

// Do runs fn exclusively. The context is checked before entry so callers
// whose deadline already expired do not queue for the writer lock.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(ctx)
}
