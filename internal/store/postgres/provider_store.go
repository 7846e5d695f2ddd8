package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medichain/docsign/internal/models"
)

// CAProviderStore implements store.CAProviderStore using PostgreSQL. It only
// holds custom registrations; built-in providers live in the registry.
type CAProviderStore struct {
	pool *pgxpool.Pool
}

// NewCAProviderStore creates a PostgreSQL-backed CA provider store.
func NewCAProviderStore(pool *pgxpool.Pool) *CAProviderStore {
	return &CAProviderStore{pool: pool}
}

// List returns all persisted provider configs.
func (s *CAProviderStore) List(ctx context.Context) ([]*models.CAProviderConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT code, name, endpoint_url, algorithm, key_size, validity_days,
		       supports_hsm, description, active, created_at
		FROM ca_providers
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	result := []*models.CAProviderConfig{}
	for rows.Next() {
		var cfg models.CAProviderConfig
		err := rows.Scan(
			&cfg.Code,
			&cfg.Name,
			&cfg.EndpointURL,
			&cfg.Algorithm,
			&cfg.KeySize,
			&cfg.ValidityDays,
			&cfg.SupportsHSM,
			&cfg.Description,
			&cfg.Active,
			&cfg.CreatedAt,
		)
		if err != nil {
			return nil, mapPostgresError(err)
		}
		result = append(result, &cfg)
	}

	return result, rows.Err()
}

// Put stores or replaces a provider config keyed by code.
func (s *CAProviderStore) Put(ctx context.Context, cfg *models.CAProviderConfig) error {
	createdAt := cfg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO ca_providers (
			code, name, endpoint_url, algorithm, key_size, validity_days,
			supports_hsm, description, active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (code) DO UPDATE
		SET name = EXCLUDED.name, endpoint_url = EXCLUDED.endpoint_url,
		    algorithm = EXCLUDED.algorithm, key_size = EXCLUDED.key_size,
		    validity_days = EXCLUDED.validity_days,
		    supports_hsm = EXCLUDED.supports_hsm,
		    description = EXCLUDED.description, active = EXCLUDED.active
	`,
		cfg.Code,
		cfg.Name,
		cfg.EndpointURL,
		cfg.Algorithm,
		cfg.KeySize,
		cfg.ValidityDays,
		cfg.SupportsHSM,
		cfg.Description,
		cfg.Active,
		createdAt,
	)
	if err != nil {
		return mapPostgresError(err)
	}

	return nil
}
