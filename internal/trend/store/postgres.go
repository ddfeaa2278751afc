package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flowledger/internal/trend/models"
	"flowledger/pkg/domain"
	"flowledger/pkg/platform/sentinel"
)

// Schema is the DDL for the snapshot ledger. Applied by operators
// (cmd/schema) and by integration tests.
//
// notional_usd_scaled is NUMERIC because the value is an unsigned 64-bit
// quantity that does not fit signed BIGINT at its extreme.
const Schema = `
CREATE TABLE IF NOT EXISTS trend_snapshots (
    institution_id      BIGINT NOT NULL,
    index               INTEGER NOT NULL,
    recorded_at         BIGINT NOT NULL,
    net_flow_bps        BIGINT NOT NULL,
    notional_usd_scaled NUMERIC(20, 0) NOT NULL,
    sentiment_score     BIGINT NOT NULL,
    horizon_days        BIGINT NOT NULL,
    label_hash          TEXT NOT NULL,
    PRIMARY KEY (institution_id, index)
);

CREATE TABLE IF NOT EXISTS trend_aggregates (
    institution_id          BIGINT PRIMARY KEY,
    cumulative_net_flow_bps BIGINT NOT NULL DEFAULT 0,
    total_snapshots         INTEGER NOT NULL DEFAULT 0,
    last_snapshot_index     INTEGER NOT NULL DEFAULT 0,
    last_timestamp          BIGINT NOT NULL DEFAULT 0,
    rolling_window_start    BIGINT NOT NULL DEFAULT 0,
    rolling_snapshot_count  INTEGER NOT NULL DEFAULT 0,
    rolling_net_flow_bps    BIGINT NOT NULL DEFAULT 0
);
`

// PostgresLedger persists snapshot ledgers and aggregates. Append runs in
// one transaction so the ledger row and the aggregate fold commit or roll
// back together.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

func (l *PostgresLedger) Append(ctx context.Context, snap *models.Snapshot) (*models.Snapshot, *models.Aggregates, error) {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	agg, err := lockAggregates(ctx, tx, snap.Institution)
	if err != nil {
		return nil, nil, err
	}

	var count int
	if err := tx.QueryRow(ctx,
		`SELECT count(*) FROM trend_snapshots WHERE institution_id = $1`, uint64(snap.Institution),
	).Scan(&count); err != nil {
		return nil, nil, fmt.Errorf("count snapshots: %w", err)
	}
	if count >= models.MaxSnapshotsPerInstitution {
		return nil, nil, sentinel.ErrCapacity
	}

	stored := *snap
	stored.Index = uint32(count)
	_, err = tx.Exec(ctx, `
		INSERT INTO trend_snapshots
		    (institution_id, index, recorded_at, net_flow_bps, notional_usd_scaled, sentiment_score, horizon_days, label_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uint64(stored.Institution), stored.Index, stored.Timestamp, stored.NetFlowBps,
		strconv.FormatUint(stored.NotionalUsdScaled, 10), stored.SentimentScore,
		stored.HorizonDays, stored.LabelHash.Hex())
	if err != nil {
		return nil, nil, fmt.Errorf("insert snapshot: %w", err)
	}

	agg.ApplyRecord(&stored)
	if err := writeAggregates(ctx, tx, agg); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit append: %w", err)
	}
	return &stored, agg, nil
}

func (l *PostgresLedger) Count(ctx context.Context, id domain.InstitutionID) (uint32, error) {
	var count uint32
	err := l.pool.QueryRow(ctx,
		`SELECT count(*) FROM trend_snapshots WHERE institution_id = $1`, uint64(id),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return count, nil
}

func (l *PostgresLedger) ByIndex(ctx context.Context, id domain.InstitutionID, index uint32) (*models.Snapshot, error) {
	return scanSnapshot(l.pool.QueryRow(ctx, `
		SELECT institution_id, index, recorded_at, net_flow_bps, notional_usd_scaled::TEXT, sentiment_score, horizon_days, label_hash
		FROM trend_snapshots WHERE institution_id = $1 AND index = $2`, uint64(id), index))
}

func (l *PostgresLedger) Range(ctx context.Context, id domain.InstitutionID, from, to uint32) ([]models.Snapshot, error) {
	if from > to {
		return nil, sentinel.ErrNotFound
	}
	rows, err := l.pool.Query(ctx, `
		SELECT institution_id, index, recorded_at, net_flow_bps, notional_usd_scaled::TEXT, sentiment_score, horizon_days, label_hash
		FROM trend_snapshots
		WHERE institution_id = $1 AND index >= $2 AND index < $3
		ORDER BY index`, uint64(id), from, to)
	if err != nil {
		return nil, fmt.Errorf("query snapshot range: %w", err)
	}
	defer rows.Close()

	out := make([]models.Snapshot, 0, to-from)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

func (l *PostgresLedger) Aggregates(ctx context.Context, id domain.InstitutionID) (*models.Aggregates, error) {
	agg := &models.Aggregates{Institution: id}
	err := l.pool.QueryRow(ctx, `
		SELECT cumulative_net_flow_bps, total_snapshots, last_snapshot_index, last_timestamp,
		       rolling_window_start, rolling_snapshot_count, rolling_net_flow_bps
		FROM trend_aggregates WHERE institution_id = $1`, uint64(id),
	).Scan(&agg.CumulativeNetFlowBps, &agg.TotalSnapshots, &agg.LastSnapshotIndex, &agg.LastTimestamp,
		&agg.RollingWindowStart, &agg.RollingSnapshotCount, &agg.RollingNetFlowBps)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read aggregates: %w", err)
	}
	return agg, nil
}

func (l *PostgresLedger) Rebase(ctx context.Context, id domain.InstitutionID, newStart uint64) (uint64, error) {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin rebase: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	agg, err := lockAggregates(ctx, tx, id)
	if err != nil {
		return 0, err
	}
	old := agg.RollingWindowStart
	agg.ApplyRebase(newStart)
	if err := writeAggregates(ctx, tx, agg); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit rebase: %w", err)
	}
	return old, nil
}

// lockAggregates reads the aggregate row FOR UPDATE, inserting a zeroed
// row first when the institution has none yet.
func lockAggregates(ctx context.Context, tx pgx.Tx, id domain.InstitutionID) (*models.Aggregates, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO trend_aggregates (institution_id) VALUES ($1)
		ON CONFLICT (institution_id) DO NOTHING`, uint64(id))
	if err != nil {
		return nil, fmt.Errorf("ensure aggregates row: %w", err)
	}

	agg := &models.Aggregates{Institution: id}
	err = tx.QueryRow(ctx, `
		SELECT cumulative_net_flow_bps, total_snapshots, last_snapshot_index, last_timestamp,
		       rolling_window_start, rolling_snapshot_count, rolling_net_flow_bps
		FROM trend_aggregates WHERE institution_id = $1 FOR UPDATE`, uint64(id),
	).Scan(&agg.CumulativeNetFlowBps, &agg.TotalSnapshots, &agg.LastSnapshotIndex, &agg.LastTimestamp,
		&agg.RollingWindowStart, &agg.RollingSnapshotCount, &agg.RollingNetFlowBps)
	if err != nil {
		return nil, fmt.Errorf("lock aggregates: %w", err)
	}
	return agg, nil
}

func writeAggregates(ctx context.Context, tx pgx.Tx, agg *models.Aggregates) error {
	_, err := tx.Exec(ctx, `
		UPDATE trend_aggregates SET
		    cumulative_net_flow_bps = $2,
		    total_snapshots = $3,
		    last_snapshot_index = $4,
		    last_timestamp = $5,
		    rolling_window_start = $6,
		    rolling_snapshot_count = $7,
		    rolling_net_flow_bps = $8
		WHERE institution_id = $1`,
		uint64(agg.Institution), agg.CumulativeNetFlowBps, agg.TotalSnapshots,
		agg.LastSnapshotIndex, agg.LastTimestamp, agg.RollingWindowStart,
		agg.RollingSnapshotCount, agg.RollingNetFlowBps)
	if err != nil {
		return fmt.Errorf("write aggregates: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*models.Snapshot, error) {
	var (
		id       uint64
		notional string
		label    string
		snap     models.Snapshot
	)
	err := row.Scan(&id, &snap.Index, &snap.Timestamp, &snap.NetFlowBps,
		&notional, &snap.SentimentScore, &snap.HorizonDays, &label)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}

	snap.Institution = domain.InstitutionID(id)
	snap.NotionalUsdScaled, err = strconv.ParseUint(notional, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt notional %q: %w", notional, err)
	}
	labelHash, ok := domain.ParseLabel(label)
	if !ok {
		return nil, fmt.Errorf("corrupt label hash %q", label)
	}
	snap.LabelHash = labelHash
	return &snap, nil
}
