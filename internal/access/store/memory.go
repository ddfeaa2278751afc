// Package store provides the access-control stores (memory and Postgres).
package store

import (
	"context"
	"math/big"
	"sync"

	"flowledger/internal/access/models"
	"flowledger/pkg/domain"
	"flowledger/pkg/platform/sentinel"
)

// InMemoryReporters implements the reporter set with a mutex-guarded map.
type InMemoryReporters struct {
	mu        sync.RWMutex
	reporters map[domain.Address]models.Reporter
}

func NewInMemoryReporters() *InMemoryReporters {
	return &InMemoryReporters{reporters: make(map[domain.Address]models.Reporter)}
}

func (s *InMemoryReporters) SetActive(_ context.Context, addr domain.Address, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if active && s.reporters[addr].Active {
		return sentinel.ErrAlreadyUsed
	}
	if active {
		s.reporters[addr] = models.Reporter{Active: true}
	} else {
		delete(s.reporters, addr)
	}
	return nil
}

func (s *InMemoryReporters) IsActive(_ context.Context, addr domain.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reporters[addr].Active, nil
}

// InMemoryState implements the global state store.
type InMemoryState struct {
	mu    sync.RWMutex
	state models.State
}

// NewInMemoryState seeds the state with the initial fee; the system starts
// un-halted.
func NewInMemoryState(initialFeeWei *big.Int) *InMemoryState {
	fee := big.NewInt(0)
	if initialFeeWei != nil {
		fee = new(big.Int).Set(initialFeeWei)
	}
	return &InMemoryState{state: models.State{SnapshotFeeWei: fee}}
}

func (s *InMemoryState) Get(context.Context) (models.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone(), nil
}

func (s *InMemoryState) SetHalted(_ context.Context, halted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Halted = halted
	return nil
}

func (s *InMemoryState) SetSnapshotFee(_ context.Context, feeWei *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SnapshotFeeWei = new(big.Int).Set(feeWei)
	return nil
}
