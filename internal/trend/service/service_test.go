package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	accessservice "flowledger/internal/access/service"
	accessstore "flowledger/internal/access/store"
	"flowledger/internal/audit"
	auditmemory "flowledger/internal/audit/store/memory"
	"flowledger/internal/fees"
	instservice "flowledger/internal/institution/service"
	inststore "flowledger/internal/institution/store"
	"flowledger/internal/mocks"
	"flowledger/internal/platform/config"
	"flowledger/internal/platform/serial"
	"flowledger/internal/trend/models"
	"flowledger/internal/trend/store"
	dErrors "flowledger/pkg/domain-errors"
	"flowledger/pkg/domain"
	"flowledger/pkg/requestcontext"
)

func addr(last byte) domain.Address {
	var a domain.Address
	a[19] = last
	return a
}

var (
	governance = addr(0xA0)
	guardian   = addr(0xA1)
	oracle     = addr(0xA2)
	feeSink    = addr(0xA3)
	reporter   = addr(0xB0)
)

type fixture struct {
	trend        *Service
	access       *accessservice.Service
	institutions *instservice.Service
	forwarder    *fees.Recorder
	events       *auditmemory.Store
}

func newFixture(t *testing.T, initialFeeWei *big.Int) *fixture {
	t.Helper()

	roles := config.Roles{
		Governance: governance,
		Sentinel:   guardian,
		Oracle:     oracle,
		FeeSink:    feeSink,
	}
	gate := serial.NewGate()
	events := auditmemory.New()
	publisher := audit.NewPublisher(events)

	access := accessservice.New(roles,
		accessstore.NewInMemoryReporters(),
		accessstore.NewInMemoryState(initialFeeWei),
		gate,
		accessservice.WithAuditPublisher(publisher),
	)
	institutions := instservice.New(inststore.NewInMemoryDirectory(), access, gate,
		instservice.WithAuditPublisher(publisher),
	)
	forwarder := fees.NewRecorder()
	trend := New(store.NewInMemoryLedger(), access, institutions, forwarder, gate,
		WithAuditPublisher(publisher),
	)
	return &fixture{
		trend:        trend,
		access:       access,
		institutions: institutions,
		forwarder:    forwarder,
		events:       events,
	}
}

func as(caller domain.Address, at time.Time) context.Context {
	ctx := requestcontext.WithCaller(context.Background(), caller)
	return requestcontext.WithTime(ctx, at)
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func (f *fixture) onboard(t *testing.T) domain.InstitutionID {
	t.Helper()
	id, err := f.institutions.Onboard(as(governance, t0), addr(1), 7, 2, domain.Label{0x01}, nil)
	require.NoError(t, err)
	return id
}

func (f *fixture) record(t *testing.T, id domain.InstitutionID, netFlow int64, value *big.Int) (*models.Snapshot, error) {
	t.Helper()
	return f.trend.Record(as(reporter, t0), RecordRequest{
		Institution:       id,
		NetFlowBps:        netFlow,
		NotionalUsdScaled: 1_000_000,
		SentimentScore:    10,
		HorizonDays:       30,
		LabelHash:         domain.Label{0xAA},
		AttachedValueWei:  value,
	})
}

func (f *fixture) enableReporter(t *testing.T) {
	t.Helper()
	require.NoError(t, f.access.SetReporter(as(governance, t0), reporter, true))
}

func TestRecordWorkedExample(t *testing.T) {
	fee := big.NewInt(1000)
	f := newFixture(t, fee)
	f.enableReporter(t)
	id := f.onboard(t)
	require.Equal(t, domain.InstitutionID(1), id)

	first, err := f.record(t, id, 150, fee)
	require.NoError(t, err)
	require.Equal(t, uint32(0), first.Index)

	agg, err := f.trend.Aggregates(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, int64(150), agg.CumulativeNetFlowBps)
	require.Equal(t, int64(150), agg.RollingNetFlowBps)
	require.Equal(t, uint32(1), agg.TotalSnapshots)

	second, err := f.record(t, id, -50, fee)
	require.NoError(t, err)
	require.Equal(t, uint32(1), second.Index)

	agg, err = f.trend.Aggregates(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, int64(100), agg.CumulativeNetFlowBps)
	require.Equal(t, int64(100), agg.RollingNetFlowBps)
	require.Equal(t, uint32(2), agg.TotalSnapshots)
	require.Equal(t, uint32(1), agg.LastSnapshotIndex)

	count, err := f.trend.Count(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, uint32(2), count)
}

func TestRecordPreconditionOrder(t *testing.T) {
	fee := big.NewInt(1000)

	t.Run("halted wins over everything", func(t *testing.T) {
		f := newFixture(t, fee)
		require.NoError(t, f.access.ToggleHalt(as(guardian, t0), true))

		// caller is not even a reporter, but halted surfaces first
		_, err := f.trend.Record(as(addr(0xEE), t0), RecordRequest{Institution: 404})
		require.True(t, dErrors.HasCode(err, dErrors.CodeHalted))
	})

	t.Run("reporter check before existence", func(t *testing.T) {
		f := newFixture(t, fee)
		_, err := f.trend.Record(as(addr(0xEE), t0), RecordRequest{Institution: 404})
		require.True(t, dErrors.HasCode(err, dErrors.CodeNotReporter))
	})

	t.Run("existence before fee", func(t *testing.T) {
		f := newFixture(t, fee)
		f.enableReporter(t)
		_, err := f.record(t, 404, 1, nil)
		require.True(t, dErrors.HasCode(err, dErrors.CodeInstitutionNotFound))
	})

	t.Run("fee before label", func(t *testing.T) {
		f := newFixture(t, fee)
		f.enableReporter(t)
		id := f.onboard(t)

		_, err := f.trend.Record(as(reporter, t0), RecordRequest{
			Institution: id,
			LabelHash:   models.ZeroLabel,
		})
		require.True(t, dErrors.HasCode(err, dErrors.CodeFeeRequired))
	})

	t.Run("label before capacity", func(t *testing.T) {
		f := newFixture(t, fee)
		f.enableReporter(t)
		id := f.onboard(t)

		_, err := f.trend.Record(as(reporter, t0), RecordRequest{
			Institution:      id,
			LabelHash:        models.ZeroLabel,
			AttachedValueWei: fee,
		})
		require.True(t, dErrors.HasCode(err, dErrors.CodeInvalidLabel))
	})
}

func TestRecordZeroLabelLeavesNoTrace(t *testing.T) {
	f := newFixture(t, big.NewInt(0))
	f.enableReporter(t)
	id := f.onboard(t)

	_, err := f.trend.Record(as(reporter, t0), RecordRequest{Institution: id, LabelHash: models.ZeroLabel})
	require.True(t, dErrors.HasCode(err, dErrors.CodeInvalidLabel))

	count, err := f.trend.Count(context.Background(), id)
	require.NoError(t, err)
	require.Zero(t, count)

	agg, err := f.trend.Aggregates(context.Background(), id)
	require.NoError(t, err)
	require.Zero(t, agg.TotalSnapshots)
}

func TestOracleIsAlwaysAReporter(t *testing.T) {
	f := newFixture(t, big.NewInt(0))
	id := f.onboard(t)

	snap, err := f.trend.Record(as(oracle, t0), RecordRequest{
		Institution: id,
		NetFlowBps:  5,
		LabelHash:   domain.Label{0x01},
	})
	require.NoError(t, err)
	require.Equal(t, uint32(0), snap.Index)
}

func TestRecordCapacity(t *testing.T) {
	if testing.Short() {
		t.Skip("fills an entire ledger")
	}
	f := newFixture(t, big.NewInt(0))
	f.enableReporter(t)
	full := f.onboard(t)
	other, err := f.institutions.Onboard(as(governance, t0), addr(2), 7, 2, domain.Label{0x01}, nil)
	require.NoError(t, err)

	for i := 0; i < models.MaxSnapshotsPerInstitution; i++ {
		_, err := f.record(t, full, 1, nil)
		require.NoError(t, err)
	}

	_, err = f.record(t, full, 1, nil)
	require.True(t, dErrors.HasCode(err, dErrors.CodeMaxSnapshots))

	// the neighboring ledger is unaffected
	snap, err := f.record(t, other, 1, nil)
	require.NoError(t, err)
	require.Equal(t, uint32(0), snap.Index)

	agg, err := f.trend.Aggregates(context.Background(), full)
	require.NoError(t, err)
	require.Equal(t, uint32(models.MaxSnapshotsPerInstitution), agg.TotalSnapshots)

	// with a full ledger the batch clamp is observable
	page, err := f.trend.Batch(context.Background(), full, 0, 10_000)
	require.NoError(t, err)
	require.Len(t, page, models.MaxBatchSize)
}

func TestRollingCountersAreMonotone(t *testing.T) {
	f := newFixture(t, big.NewInt(0))
	f.enableReporter(t)
	id := f.onboard(t)

	var prevCount uint32
	for i := 0; i < 10; i++ {
		_, err := f.record(t, id, 100, nil)
		require.NoError(t, err)

		agg, err := f.trend.Aggregates(context.Background(), id)
		require.NoError(t, err)
		require.Greater(t, agg.RollingSnapshotCount, prevCount)
		prevCount = agg.RollingSnapshotCount
		// the counters accumulate regardless of the window pointer
		require.Equal(t, int64(100*(i+1)), agg.RollingNetFlowBps)
	}
}

func TestWindowBootstrap(t *testing.T) {
	f := newFixture(t, big.NewInt(0))
	f.enableReporter(t)
	id := f.onboard(t)

	_, err := f.record(t, id, 1, nil)
	require.NoError(t, err)

	agg, err := f.trend.Aggregates(context.Background(), id)
	require.NoError(t, err)
	want := uint64(t0.Unix()) - models.WindowLength
	require.Equal(t, want, agg.RollingWindowStart)

	// later recordings never move the pointer
	later := as(reporter, t0.Add(90*24*time.Hour))
	_, err = f.trend.Record(later, RecordRequest{Institution: id, NetFlowBps: 1, LabelHash: domain.Label{0xAA}})
	require.NoError(t, err)

	agg, err = f.trend.Aggregates(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, want, agg.RollingWindowStart)
}

func TestRebaseWindow(t *testing.T) {
	f := newFixture(t, big.NewInt(0))
	f.enableReporter(t)
	id := f.onboard(t)

	for i := 0; i < 3; i++ {
		_, err := f.record(t, id, 10, nil)
		require.NoError(t, err)
	}

	t.Run("moves only the pointer", func(t *testing.T) {
		newStart := uint64(t0.Unix())
		require.NoError(t, f.trend.RebaseWindow(as(guardian, t0), id, newStart))

		agg, err := f.trend.Aggregates(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, newStart, agg.RollingWindowStart)
		require.Equal(t, uint32(3), agg.RollingSnapshotCount)
		require.Equal(t, int64(30), agg.RollingNetFlowBps)
	})

	t.Run("governance may also rebase", func(t *testing.T) {
		require.NoError(t, f.trend.RebaseWindow(as(governance, t0), id, 42))
	})

	t.Run("reporters may not", func(t *testing.T) {
		err := f.trend.RebaseWindow(as(reporter, t0), id, 42)
		require.True(t, dErrors.HasCode(err, dErrors.CodeNotSentinel))
	})

	t.Run("unknown institution", func(t *testing.T) {
		err := f.trend.RebaseWindow(as(governance, t0), 404, 42)
		require.True(t, dErrors.HasCode(err, dErrors.CodeInstitutionNotFound))
	})

	t.Run("creates aggregates when none exist yet", func(t *testing.T) {
		fresh, err := f.institutions.Onboard(as(governance, t0), addr(3), 7, 2, domain.Label{0x01}, nil)
		require.NoError(t, err)
		require.NoError(t, f.trend.RebaseWindow(as(guardian, t0), fresh, 77))

		agg, err := f.trend.Aggregates(context.Background(), fresh)
		require.NoError(t, err)
		require.Equal(t, uint64(77), agg.RollingWindowStart)
		require.Zero(t, agg.TotalSnapshots)
	})
}

func TestFeeForwarding(t *testing.T) {
	fee := big.NewInt(1000)

	t.Run("forwards the full attached value to the sink", func(t *testing.T) {
		f := newFixture(t, fee)
		f.enableReporter(t)
		id := f.onboard(t)

		attached := big.NewInt(2500) // overpayment is forwarded in full
		_, err := f.record(t, id, 1, attached)
		require.NoError(t, err)

		transfers := f.forwarder.Transfers()
		require.Len(t, transfers, 1)
		require.Equal(t, feeSink, transfers[0].To)
		require.Equal(t, attached, transfers[0].Amount)
	})

	t.Run("underpayment fails before any state change", func(t *testing.T) {
		f := newFixture(t, fee)
		f.enableReporter(t)
		id := f.onboard(t)

		_, err := f.record(t, id, 1, big.NewInt(999))
		require.True(t, dErrors.HasCode(err, dErrors.CodeFeeRequired))
		require.Empty(t, f.forwarder.Transfers())
	})

	t.Run("forward failure is swallowed", func(t *testing.T) {
		f := newFixture(t, fee)
		f.enableReporter(t)
		id := f.onboard(t)
		f.forwarder.FailWith(errors.New("channel down"))

		snap, err := f.record(t, id, 1, fee)
		require.NoError(t, err)
		require.Equal(t, uint32(0), snap.Index)

		// no fee.forwarded event on failure
		events, err := f.events.ListByInstitution(context.Background(), id)
		require.NoError(t, err)
		for _, event := range events {
			require.NotEqual(t, audit.ActionFeeForwarded, event.Action)
		}
	})

	t.Run("forwards exactly once per recording", func(t *testing.T) {
		f := newFixture(t, fee)
		f.enableReporter(t)
		id := f.onboard(t)

		ctrl := gomock.NewController(t)
		forwarder := mocks.NewMockForwarder(ctrl)
		forwarder.EXPECT().Forward(gomock.Any(), feeSink, fee).Return(nil).Times(1)

		trend := New(store.NewInMemoryLedger(), f.access, f.institutions, forwarder, serial.NewGate())
		_, err := trend.Record(as(reporter, t0), RecordRequest{
			Institution:      id,
			NetFlowBps:       1,
			LabelHash:        domain.Label{0xAA},
			AttachedValueWei: fee,
		})
		require.NoError(t, err)
	})

	t.Run("no forwarding attempt when no fee is configured", func(t *testing.T) {
		f := newFixture(t, big.NewInt(0))
		f.enableReporter(t)
		id := f.onboard(t)

		_, err := f.record(t, id, 1, nil)
		require.NoError(t, err)
		require.Empty(t, f.forwarder.Transfers())
	})
}

func TestDeactivationGatesRecordingOnly(t *testing.T) {
	f := newFixture(t, big.NewInt(0))
	f.enableReporter(t)
	id := f.onboard(t)

	_, err := f.record(t, id, 1, nil)
	require.NoError(t, err)
	require.NoError(t, f.institutions.Deactivate(as(governance, t0), id))

	_, err = f.record(t, id, 1, nil)
	require.True(t, dErrors.HasCode(err, dErrors.CodeInstitutionNotFound))

	// historical reads remain available
	snap, err := f.trend.ByIndex(context.Background(), id, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(0), snap.Index)

	agg, err := f.trend.Aggregates(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, uint32(1), agg.TotalSnapshots)
}

func TestHaltGatesRecordingOnly(t *testing.T) {
	f := newFixture(t, big.NewInt(0))
	f.enableReporter(t)
	f.onboard(t)
	require.NoError(t, f.access.ToggleHalt(as(guardian, t0), true))

	// onboarding and tag updates run while halted
	id, err := f.institutions.Onboard(as(governance, t0), addr(9), 7, 2, domain.Label{0x01}, nil)
	require.NoError(t, err)
	require.NoError(t, f.institutions.SetTags(as(governance, t0), id, domain.Label{0x02}, nil))

	_, err = f.record(t, id, 1, nil)
	require.True(t, dErrors.HasCode(err, dErrors.CodeHalted))

	// and recording resumes after the sentinel lifts the halt
	require.NoError(t, f.access.ToggleHalt(as(guardian, t0), false))
	_, err = f.record(t, id, 1, nil)
	require.NoError(t, err)
}

func TestProjections(t *testing.T) {
	f := newFixture(t, big.NewInt(0))
	f.enableReporter(t)
	id := f.onboard(t)
	for i := 0; i < 10; i++ {
		_, err := f.record(t, id, int64(i), nil)
		require.NoError(t, err)
	}

	ctx := context.Background()

	t.Run("latest", func(t *testing.T) {
		snap, err := f.trend.Latest(ctx, id)
		require.NoError(t, err)
		require.Equal(t, uint32(9), snap.Index)
		require.Equal(t, int64(9), snap.NetFlowBps)
	})

	t.Run("latest on an empty ledger", func(t *testing.T) {
		_, err := f.trend.Latest(ctx, 404)
		require.True(t, dErrors.HasCode(err, dErrors.CodeIndexOutOfRange))
	})

	t.Run("by index out of range", func(t *testing.T) {
		_, err := f.trend.ByIndex(ctx, id, 10)
		require.True(t, dErrors.HasCode(err, dErrors.CodeIndexOutOfRange))
	})

	t.Run("range", func(t *testing.T) {
		snaps, err := f.trend.Range(ctx, id, 2, 5)
		require.NoError(t, err)
		require.Len(t, snaps, 3)
		require.Equal(t, uint32(2), snaps[0].Index)

		_, err = f.trend.Range(ctx, id, 5, 2)
		require.True(t, dErrors.HasCode(err, dErrors.CodeIndexOutOfRange))

		_, err = f.trend.Range(ctx, id, 0, 11)
		require.True(t, dErrors.HasCode(err, dErrors.CodeIndexOutOfRange))
	})

	t.Run("batch clamps the limit", func(t *testing.T) {
		snaps, err := f.trend.Batch(ctx, id, 0, 10_000)
		require.NoError(t, err)
		require.Len(t, snaps, 10)

		snaps, err = f.trend.Batch(ctx, id, 8, models.MaxBatchSize+1)
		require.NoError(t, err)
		require.Len(t, snaps, 2)

		snaps, err = f.trend.Batch(ctx, id, 99, 5)
		require.NoError(t, err)
		require.Empty(t, snaps)
	})

	t.Run("window health", func(t *testing.T) {
		health, err := f.trend.WindowHealth(ctx, id)
		require.NoError(t, err)
		require.Equal(t, uint32(10), health.SnapshotCount)
		require.Equal(t, int64(45), health.NetFlowBps)
		require.Equal(t, "4.5", health.AvgNetFlowBps.String())
		require.Equal(t, "0.0045", health.NetFlowPercent.String())
	})
}
