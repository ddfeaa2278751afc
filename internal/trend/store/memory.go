package store

import (
	"context"
	"sync"

	"flowledger/internal/trend/models"
	"flowledger/pkg/domain"
	"flowledger/pkg/platform/sentinel"
)

// InMemoryLedger keeps the snapshot ledgers and their aggregates together
// so an append and its aggregate fold commit under one lock. Ledgers are
// append-only; aggregates are created lazily and never destroyed.
type InMemoryLedger struct {
	mu         sync.RWMutex
	snapshots  map[domain.InstitutionID][]models.Snapshot
	aggregates map[domain.InstitutionID]*models.Aggregates
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{
		snapshots:  make(map[domain.InstitutionID][]models.Snapshot),
		aggregates: make(map[domain.InstitutionID]*models.Aggregates),
	}
}

// Append writes the snapshot at the next dense index and folds it into the
// institution's aggregates in one step. The store assigns the index.
// Returns sentinel.ErrCapacity once the ledger holds its maximum.
func (l *InMemoryLedger) Append(_ context.Context, snap *models.Snapshot) (*models.Snapshot, *models.Aggregates, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ledger := l.snapshots[snap.Institution]
	if len(ledger) >= models.MaxSnapshotsPerInstitution {
		return nil, nil, sentinel.ErrCapacity
	}

	stored := *snap
	stored.Index = uint32(len(ledger))
	l.snapshots[snap.Institution] = append(ledger, stored)

	agg, ok := l.aggregates[snap.Institution]
	if !ok {
		agg = &models.Aggregates{Institution: snap.Institution}
		l.aggregates[snap.Institution] = agg
	}
	agg.ApplyRecord(&stored)

	aggCopy := *agg
	return &stored, &aggCopy, nil
}

// Count returns the ledger length. Zero for unknown institutions.
func (l *InMemoryLedger) Count(_ context.Context, id domain.InstitutionID) (uint32, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint32(len(l.snapshots[id])), nil
}

// ByIndex returns one snapshot; sentinel.ErrNotFound past the end.
func (l *InMemoryLedger) ByIndex(_ context.Context, id domain.InstitutionID, index uint32) (*models.Snapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ledger := l.snapshots[id]
	if int(index) >= len(ledger) {
		return nil, sentinel.ErrNotFound
	}
	snap := ledger[index]
	return &snap, nil
}

// Range returns the half-open slice [from, to). Bounds are validated by
// the service; the store re-checks only the upper bound.
func (l *InMemoryLedger) Range(_ context.Context, id domain.InstitutionID, from, to uint32) ([]models.Snapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ledger := l.snapshots[id]
	if from > to || int(to) > len(ledger) {
		return nil, sentinel.ErrNotFound
	}
	out := make([]models.Snapshot, to-from)
	copy(out, ledger[from:to])
	return out, nil
}

// Aggregates returns a copy of the institution's aggregate record;
// sentinel.ErrNotFound before the first snapshot or rebase.
func (l *InMemoryLedger) Aggregates(_ context.Context, id domain.InstitutionID) (*models.Aggregates, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	agg, ok := l.aggregates[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	aggCopy := *agg
	return &aggCopy, nil
}

// Rebase overwrites the window start pointer, creating a zeroed aggregate
// record when none exists yet. Returns the previous pointer.
func (l *InMemoryLedger) Rebase(_ context.Context, id domain.InstitutionID, newStart uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	agg, ok := l.aggregates[id]
	if !ok {
		agg = &models.Aggregates{Institution: id}
		l.aggregates[id] = agg
	}
	old := agg.RollingWindowStart
	agg.ApplyRebase(newStart)
	return old, nil
}
