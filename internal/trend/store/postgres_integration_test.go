//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"flowledger/internal/trend/models"
	"flowledger/pkg/domain"
	"flowledger/pkg/platform/sentinel"
	"flowledger/pkg/testutil/containers"
)

func TestPostgresLedger(t *testing.T) {
	pg := containers.NewPostgresContainer(t, Schema)
	ledger := NewPostgresLedger(pg.Pool)
	ctx := context.Background()

	reset := func(t *testing.T) {
		t.Helper()
		require.NoError(t, pg.TruncateTables(ctx, "trend_snapshots", "trend_aggregates"))
	}

	mkSnap := func(id domain.InstitutionID, netFlow int64) *models.Snapshot {
		return &models.Snapshot{
			Institution:       id,
			Timestamp:         1_700_000_000,
			NetFlowBps:        netFlow,
			NotionalUsdScaled: 18_000_000_000_000_000_000, // exceeds int64 on purpose
			SentimentScore:    -3,
			HorizonDays:       30,
			LabelHash:         domain.Label{0xAA},
		}
	}

	t.Run("append assigns dense indexes and folds aggregates", func(t *testing.T) {
		reset(t)

		first, agg, err := ledger.Append(ctx, mkSnap(1, 150))
		require.NoError(t, err)
		require.Equal(t, uint32(0), first.Index)
		require.Equal(t, int64(150), agg.CumulativeNetFlowBps)

		second, agg, err := ledger.Append(ctx, mkSnap(1, -50))
		require.NoError(t, err)
		require.Equal(t, uint32(1), second.Index)
		require.Equal(t, int64(100), agg.CumulativeNetFlowBps)
		require.Equal(t, uint32(2), agg.TotalSnapshots)
	})

	t.Run("round-trips the unsigned notional", func(t *testing.T) {
		reset(t)
		_, _, err := ledger.Append(ctx, mkSnap(1, 1))
		require.NoError(t, err)

		snap, err := ledger.ByIndex(ctx, 1, 0)
		require.NoError(t, err)
		require.Equal(t, uint64(18_000_000_000_000_000_000), snap.NotionalUsdScaled)
		require.Equal(t, domain.Label{0xAA}, snap.LabelHash)
	})

	t.Run("range and missing lookups", func(t *testing.T) {
		reset(t)
		for i := int64(0); i < 5; i++ {
			_, _, err := ledger.Append(ctx, mkSnap(1, i))
			require.NoError(t, err)
		}

		snaps, err := ledger.Range(ctx, 1, 1, 4)
		require.NoError(t, err)
		require.Len(t, snaps, 3)
		require.Equal(t, uint32(1), snaps[0].Index)

		_, err = ledger.ByIndex(ctx, 1, 5)
		require.ErrorIs(t, err, sentinel.ErrNotFound)

		_, err = ledger.Aggregates(ctx, 404)
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("rebase moves only the pointer", func(t *testing.T) {
		reset(t)
		_, _, err := ledger.Append(ctx, mkSnap(1, 10))
		require.NoError(t, err)

		before, err := ledger.Aggregates(ctx, 1)
		require.NoError(t, err)

		old, err := ledger.Rebase(ctx, 1, 9000)
		require.NoError(t, err)
		require.Equal(t, before.RollingWindowStart, old)

		after, err := ledger.Aggregates(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, uint64(9000), after.RollingWindowStart)
		require.Equal(t, before.RollingSnapshotCount, after.RollingSnapshotCount)
		require.Equal(t, before.RollingNetFlowBps, after.RollingNetFlowBps)
	})

	t.Run("rebase creates a zeroed record when absent", func(t *testing.T) {
		reset(t)
		old, err := ledger.Rebase(ctx, 9, 55)
		require.NoError(t, err)
		require.Zero(t, old)

		agg, err := ledger.Aggregates(ctx, 9)
		require.NoError(t, err)
		require.Equal(t, uint64(55), agg.RollingWindowStart)
	})
}
