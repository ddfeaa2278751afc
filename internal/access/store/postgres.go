package store

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flowledger/internal/access/models"
	"flowledger/pkg/domain"
	"flowledger/pkg/platform/sentinel"
)

// Schema is the DDL for the access-control tables. Applied by operators
// (cmd/schema) and by integration tests.
const Schema = `
CREATE TABLE IF NOT EXISTS reporters (
    address     TEXT PRIMARY KEY,
    active      BOOLEAN NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS global_state (
    id               SMALLINT PRIMARY KEY CHECK (id = 1),
    halted           BOOLEAN NOT NULL DEFAULT FALSE,
    snapshot_fee_wei NUMERIC(78, 0) NOT NULL DEFAULT 0
);
`

// PostgresReporters persists the reporter set.
type PostgresReporters struct {
	pool *pgxpool.Pool
}

func NewPostgresReporters(pool *pgxpool.Pool) *PostgresReporters {
	return &PostgresReporters{pool: pool}
}

func (s *PostgresReporters) SetActive(ctx context.Context, addr domain.Address, active bool) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin reporter update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current bool
	err = tx.QueryRow(ctx,
		`SELECT active FROM reporters WHERE address = $1 FOR UPDATE`, addr.Hex(),
	).Scan(&current)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		current = false
	case err != nil:
		return fmt.Errorf("read reporter: %w", err)
	}

	if active && current {
		return sentinel.ErrAlreadyUsed
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO reporters (address, active, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (address) DO UPDATE SET active = EXCLUDED.active, updated_at = now()`,
		addr.Hex(), active)
	if err != nil {
		return fmt.Errorf("write reporter: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresReporters) IsActive(ctx context.Context, addr domain.Address) (bool, error) {
	var active bool
	err := s.pool.QueryRow(ctx,
		`SELECT active FROM reporters WHERE address = $1`, addr.Hex(),
	).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read reporter: %w", err)
	}
	return active, nil
}

// PostgresState persists the halt flag and snapshot fee in a single row.
type PostgresState struct {
	pool *pgxpool.Pool
}

// NewPostgresState ensures the singleton row exists, seeding the fee on
// first boot only.
func NewPostgresState(ctx context.Context, pool *pgxpool.Pool, initialFeeWei *big.Int) (*PostgresState, error) {
	fee := "0"
	if initialFeeWei != nil {
		fee = initialFeeWei.String()
	}
	_, err := pool.Exec(ctx, `
		INSERT INTO global_state (id, halted, snapshot_fee_wei) VALUES (1, FALSE, $1)
		ON CONFLICT (id) DO NOTHING`, fee)
	if err != nil {
		return nil, fmt.Errorf("seed global state: %w", err)
	}
	return &PostgresState{pool: pool}, nil
}

func (s *PostgresState) Get(ctx context.Context) (models.State, error) {
	var halted bool
	var feeText string
	err := s.pool.QueryRow(ctx,
		`SELECT halted, snapshot_fee_wei::TEXT FROM global_state WHERE id = 1`,
	).Scan(&halted, &feeText)
	if err != nil {
		return models.State{}, fmt.Errorf("read global state: %w", err)
	}
	fee, ok := new(big.Int).SetString(feeText, 10)
	if !ok {
		return models.State{}, fmt.Errorf("corrupt snapshot fee %q", feeText)
	}
	return models.State{Halted: halted, SnapshotFeeWei: fee}, nil
}

func (s *PostgresState) SetHalted(ctx context.Context, halted bool) error {
	_, err := s.pool.Exec(ctx, `UPDATE global_state SET halted = $1 WHERE id = 1`, halted)
	if err != nil {
		return fmt.Errorf("write halt flag: %w", err)
	}
	return nil
}

func (s *PostgresState) SetSnapshotFee(ctx context.Context, feeWei *big.Int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE global_state SET snapshot_fee_wei = $1 WHERE id = 1`, feeWei.String())
	if err != nil {
		return fmt.Errorf("write snapshot fee: %w", err)
	}
	return nil
}
