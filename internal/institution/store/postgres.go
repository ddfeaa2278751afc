package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flowledger/internal/institution/models"
	"flowledger/pkg/domain"
	"flowledger/pkg/platform/sentinel"
)

// Schema is the DDL for the institution directory. Applied by operators
// (cmd/schema) and by integration tests.
//
// The id sequence starts at 1 and is never reset; deactivated rows keep
// their ids. controller_bindings is the reverse lookup and is
// last-write-wins on the controller address.
const Schema = `
CREATE TABLE IF NOT EXISTS institutions (
    id           BIGINT PRIMARY KEY,
    controller   TEXT NOT NULL,
    active       BOOLEAN NOT NULL DEFAULT TRUE,
    onboarded_at TIMESTAMPTZ NOT NULL,
    region_code  BIGINT NOT NULL CHECK (region_code > 0),
    risk_tier    SMALLINT NOT NULL CHECK (risk_tier BETWEEN 1 AND 255),
    primary_tag  TEXT NOT NULL,
    tags         TEXT[] NOT NULL DEFAULT '{}'
);

CREATE SEQUENCE IF NOT EXISTS institutions_id_seq START 1 OWNED BY institutions.id;

CREATE TABLE IF NOT EXISTS controller_bindings (
    controller     TEXT PRIMARY KEY,
    institution_id BIGINT NOT NULL REFERENCES institutions (id)
);

CREATE INDEX IF NOT EXISTS institutions_region_idx ON institutions (region_code) WHERE active;
CREATE INDEX IF NOT EXISTS institutions_tier_idx ON institutions (risk_tier) WHERE active;
`

// PostgresDirectory persists the institution registry.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

func (s *PostgresDirectory) Create(ctx context.Context, inst *models.Institution) (domain.InstitutionID, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin onboarding: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var count int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM institutions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count institutions: %w", err)
	}
	if count >= models.MaxInstitutions {
		return 0, sentinel.ErrCapacity
	}

	var id uint64
	if err := tx.QueryRow(ctx, `SELECT nextval('institutions_id_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("allocate institution id: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO institutions (id, controller, active, onboarded_at, region_code, risk_tier, primary_tag, tags)
		VALUES ($1, $2, TRUE, $3, $4, $5, $6, $7)`,
		id, inst.Controller.Hex(), inst.OnboardedAt, inst.RegionCode, inst.RiskTier,
		inst.PrimaryTag.Hex(), labelsToText(inst.Tags))
	if err != nil {
		return 0, fmt.Errorf("insert institution: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO controller_bindings (controller, institution_id) VALUES ($1, $2)
		ON CONFLICT (controller) DO UPDATE SET institution_id = EXCLUDED.institution_id`,
		inst.Controller.Hex(), id)
	if err != nil {
		return 0, fmt.Errorf("bind controller: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit onboarding: %w", err)
	}
	return domain.InstitutionID(id), nil
}

func (s *PostgresDirectory) Get(ctx context.Context, id domain.InstitutionID) (*models.Institution, error) {
	return scanInstitution(s.pool.QueryRow(ctx, `
		SELECT id, controller, active, onboarded_at, region_code, risk_tier, primary_tag, tags
		FROM institutions WHERE id = $1`, uint64(id)))
}

func (s *PostgresDirectory) ByController(ctx context.Context, controller domain.Address) (domain.InstitutionID, error) {
	var id uint64
	err := s.pool.QueryRow(ctx,
		`SELECT institution_id FROM controller_bindings WHERE controller = $1`, controller.Hex(),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, sentinel.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("resolve controller: %w", err)
	}
	return domain.InstitutionID(id), nil
}

// Execute loads the row FOR UPDATE, runs validate, and persists the result
// of apply inside one transaction.
func (s *PostgresDirectory) Execute(
	ctx context.Context,
	id domain.InstitutionID,
	validate func(*models.Institution) error,
	apply func(*models.Institution),
) (*models.Institution, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin institution update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inst, err := scanInstitution(tx.QueryRow(ctx, `
		SELECT id, controller, active, onboarded_at, region_code, risk_tier, primary_tag, tags
		FROM institutions WHERE id = $1 FOR UPDATE`, uint64(id)))
	if err != nil {
		return nil, err
	}
	if err := validate(inst); err != nil {
		return nil, err
	}
	apply(inst)

	_, err = tx.Exec(ctx, `
		UPDATE institutions SET active = $2, primary_tag = $3, tags = $4 WHERE id = $1`,
		uint64(inst.ID), inst.Active, inst.PrimaryTag.Hex(), labelsToText(inst.Tags))
	if err != nil {
		return nil, fmt.Errorf("update institution: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit institution update: %w", err)
	}
	return inst, nil
}

func (s *PostgresDirectory) List(ctx context.Context) ([]*models.Institution, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, controller, active, onboarded_at, region_code, risk_tier, primary_tag, tags
		FROM institutions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list institutions: %w", err)
	}
	defer rows.Close()

	var out []*models.Institution
	for rows.Next() {
		inst, err := scanInstitution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (s *PostgresDirectory) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM institutions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count institutions: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstitution(row rowScanner) (*models.Institution, error) {
	var (
		id         uint64
		controller string
		inst       models.Institution
		primaryTag string
		tagsText   []string
	)
	err := row.Scan(&id, &controller, &inst.Active, &inst.OnboardedAt,
		&inst.RegionCode, &inst.RiskTier, &primaryTag, &tagsText)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan institution: %w", err)
	}

	inst.ID = domain.InstitutionID(id)
	var ok bool
	inst.Controller, ok = domain.ParseAddress(controller)
	if !ok {
		return nil, fmt.Errorf("corrupt controller %q", controller)
	}
	inst.PrimaryTag, ok = domain.ParseLabel(primaryTag)
	if !ok {
		return nil, fmt.Errorf("corrupt primary tag %q", primaryTag)
	}
	inst.Tags, err = labelsFromText(tagsText)
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func labelsToText(labels []domain.Label) []string {
	out := make([]string, len(labels))
	for i, label := range labels {
		out[i] = label.Hex()
	}
	return out
}

func labelsFromText(texts []string) ([]domain.Label, error) {
	out := make([]domain.Label, len(texts))
	for i, text := range texts {
		label, ok := domain.ParseLabel(text)
		if !ok {
			return nil, fmt.Errorf("corrupt tag %q", text)
		}
		out[i] = label
	}
	return out, nil
}
