package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medichain/docsign/internal/models"
	"github.com/medichain/docsign/internal/store"
)

// SignerStore implements store.SignerStore using PostgreSQL.
type SignerStore struct {
	pool *pgxpool.Pool
}

// NewSignerStore creates a PostgreSQL-backed signer store.
func NewSignerStore(pool *pgxpool.Pool) *SignerStore {
	return &SignerStore{pool: pool}
}

// Get retrieves a signer by id.
func (s *SignerStore) Get(ctx context.Context, id string) (*models.Signer, error) {
	var signer models.Signer
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, role, email, org_id, active, created_at, updated_at
		FROM signers
		WHERE id = $1
	`, id).Scan(
		&signer.ID,
		&signer.Name,
		&signer.Role,
		&signer.Email,
		&signer.OrgID,
		&signer.Active,
		&signer.CreatedAt,
		&signer.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSignerNotFound
		}
		return nil, mapPostgresError(err)
	}

	return &signer, nil
}

// Put stores or replaces a signer.
func (s *SignerStore) Put(ctx context.Context, signer *models.Signer) error {
	now := time.Now()
	createdAt := signer.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO signers (id, name, role, email, org_id, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, role = EXCLUDED.role, email = EXCLUDED.email,
		    org_id = EXCLUDED.org_id, active = EXCLUDED.active,
		    updated_at = EXCLUDED.updated_at
	`,
		signer.ID,
		signer.Name,
		signer.Role,
		signer.Email,
		signer.OrgID,
		signer.Active,
		createdAt,
		now,
	)
	if err != nil {
		return mapPostgresError(err)
	}

	return nil
}
