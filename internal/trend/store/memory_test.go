package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"flowledger/internal/trend/models"
	"flowledger/pkg/domain"
	"flowledger/pkg/platform/sentinel"
)

type LedgerSuite struct {
	suite.Suite
	store *InMemoryLedger
	ctx   context.Context
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.store = NewInMemoryLedger()
	s.ctx = context.Background()
}

func (s *LedgerSuite) append(id domain.InstitutionID, netFlow int64) *models.Snapshot {
	snap, _, err := s.store.Append(s.ctx, &models.Snapshot{
		Institution: id,
		Timestamp:   1_700_000_000,
		NetFlowBps:  netFlow,
		LabelHash:   domain.Label{0x01},
	})
	s.Require().NoError(err)
	return snap
}

func (s *LedgerSuite) TestAppend() {
	s.Run("assigns dense indexes from 0", func() {
		s.Equal(uint32(0), s.append(1, 10).Index)
		s.Equal(uint32(1), s.append(1, 20).Index)
		s.Equal(uint32(0), s.append(2, 30).Index)
	})

	s.Run("folds aggregates in the same step", func() {
		_, agg, err := s.store.Append(s.ctx, &models.Snapshot{
			Institution: 7,
			Timestamp:   1_700_000_000,
			NetFlowBps:  150,
			LabelHash:   domain.Label{0x01},
		})
		s.Require().NoError(err)
		s.Equal(int64(150), agg.CumulativeNetFlowBps)
		s.Equal(uint32(1), agg.TotalSnapshots)

		count, err := s.store.Count(s.ctx, 7)
		s.Require().NoError(err)
		s.Equal(agg.TotalSnapshots, count)
	})
}

func (s *LedgerSuite) TestReads() {
	for i := int64(0); i < 5; i++ {
		s.append(1, i)
	}

	s.Run("by index", func() {
		snap, err := s.store.ByIndex(s.ctx, 1, 3)
		s.Require().NoError(err)
		s.Equal(int64(3), snap.NetFlowBps)

		_, err = s.store.ByIndex(s.ctx, 1, 5)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("range is half-open", func() {
		snaps, err := s.store.Range(s.ctx, 1, 1, 4)
		s.Require().NoError(err)
		s.Len(snaps, 3)
		s.Equal(uint32(1), snaps[0].Index)

		_, err = s.store.Range(s.ctx, 1, 0, 6)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("unknown institution counts zero", func() {
		count, err := s.store.Count(s.ctx, 404)
		s.Require().NoError(err)
		s.Zero(count)
	})

	s.Run("aggregates missing before first snapshot", func() {
		_, err := s.store.Aggregates(s.ctx, 404)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("aggregates copy does not alias the store", func() {
		agg, err := s.store.Aggregates(s.ctx, 1)
		s.Require().NoError(err)
		agg.CumulativeNetFlowBps = -1

		again, err := s.store.Aggregates(s.ctx, 1)
		s.Require().NoError(err)
		s.Equal(int64(10), again.CumulativeNetFlowBps)
	})
}

func (s *LedgerSuite) TestRebase() {
	s.Run("returns the previous pointer", func() {
		s.append(1, 10)
		before, err := s.store.Aggregates(s.ctx, 1)
		s.Require().NoError(err)

		old, err := s.store.Rebase(s.ctx, 1, 9000)
		s.Require().NoError(err)
		s.Equal(before.RollingWindowStart, old)

		after, err := s.store.Aggregates(s.ctx, 1)
		s.Require().NoError(err)
		s.Equal(uint64(9000), after.RollingWindowStart)
		s.Equal(before.RollingSnapshotCount, after.RollingSnapshotCount)
	})

	s.Run("creates a zeroed record when absent", func() {
		old, err := s.store.Rebase(s.ctx, 42, 55)
		s.Require().NoError(err)
		s.Zero(old)

		agg, err := s.store.Aggregates(s.ctx, 42)
		s.Require().NoError(err)
		s.Equal(uint64(55), agg.RollingWindowStart)
		s.Zero(agg.TotalSnapshots)
	})
}
