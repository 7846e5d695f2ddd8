package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/medichain/docsign/internal/models"
	"github.com/medichain/docsign/internal/store"
)

// SignatureStore implements store.SignatureStore using PostgreSQL.
type SignatureStore struct {
	pool *pgxpool.Pool
}

// NewSignatureStore creates a PostgreSQL-backed signature store.
func NewSignatureStore(pool *pgxpool.Pool) *SignatureStore {
	return &SignatureStore{pool: pool}
}

const signatureColumns = `
	id, target_type, target_id, signer_id, signer_name, signer_role,
	data_hash, signature_value, certificate, timestamp_info, signing_info,
	template_ref, batch_id, purpose, metadata,
	status, revoked_reason, revoked_by, revoked_at, created_at`

// Create stores a new signature record.
func (s *SignatureStore) Create(ctx context.Context, rec *models.SignatureRecord) error {
	certJSON, err := json.Marshal(rec.Certificate)
	if err != nil {
		return fmt.Errorf("failed to marshal certificate: %w", err)
	}
	tsJSON, err := json.Marshal(rec.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to marshal timestamp info: %w", err)
	}
	signingJSON, err := json.Marshal(rec.Signing)
	if err != nil {
		return fmt.Errorf("failed to marshal signing info: %w", err)
	}

	var templateJSON []byte
	if rec.Template != nil {
		if templateJSON, err = json.Marshal(rec.Template); err != nil {
			return fmt.Errorf("failed to marshal template ref: %w", err)
		}
	}

	var metadataJSON []byte
	if rec.Metadata != nil {
		if metadataJSON, err = json.Marshal(rec.Metadata); err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO signatures (` + signatureColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	_, err = s.pool.Exec(ctx, query,
		rec.ID,
		rec.TargetType,
		rec.TargetID,
		rec.SignerID,
		rec.SignerName,
		rec.SignerRole,
		rec.DataHash,
		rec.SignatureValue,
		certJSON,
		tsJSON,
		signingJSON,
		templateJSON,
		rec.BatchID,
		rec.Purpose,
		metadataJSON,
		rec.Status,
		rec.RevokedReason,
		rec.RevokedBy,
		rec.RevokedAt,
		rec.CreatedAt,
	)
	if err != nil {
		return mapPostgresError(err)
	}

	return nil
}

// Get retrieves a signature record by id.
func (s *SignatureStore) Get(ctx context.Context, id uuid.UUID) (*models.SignatureRecord, error) {
	query := `SELECT ` + signatureColumns + ` FROM signatures WHERE id = $1`

	rec, err := scanSignature(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSignatureNotFound
		}
		return nil, mapPostgresError(err)
	}

	return rec, nil
}

// List returns signature records matching the given filters, newest last.
func (s *SignatureStore) List(ctx context.Context, opts store.ListSignaturesOptions) ([]*models.SignatureRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	// Filters are fixed-position; empty values disable the clause
	query := `
		SELECT ` + signatureColumns + `
		FROM signatures
		WHERE ($1 = '' OR target_type = $1)
		  AND ($2 = '' OR target_id = $2)
		  AND ($3 = '' OR signer_id = $3)
		  AND ($4::uuid IS NULL OR batch_id = $4)
		  AND ($5 = '' OR status = $5)
		ORDER BY created_at ASC
		LIMIT $6 OFFSET $7
	`

	rows, err := s.pool.Query(ctx, query,
		string(opts.TargetType),
		opts.TargetID,
		opts.SignerID,
		opts.BatchID,
		opts.Status,
		limit,
		opts.Offset,
	)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	result := []*models.SignatureRecord{}
	for rows.Next() {
		rec, err := scanSignature(rows)
		if err != nil {
			return nil, mapPostgresError(err)
		}
		result = append(result, rec)
	}

	return result, rows.Err()
}

// Revoke marks a signature as revoked. The conditional update enforces the
// one-way active -> revoked transition at the database level.
func (s *SignatureStore) Revoke(ctx context.Context, id uuid.UUID, reason, revokedBy string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE signatures
		SET status = $2, revoked_reason = $3, revoked_by = $4, revoked_at = $5
		WHERE id = $1 AND status = $6
	`,
		id,
		models.SignatureStatusRevoked,
		reason,
		revokedBy,
		at,
		models.SignatureStatusActive,
	)
	if err != nil {
		return mapPostgresError(err)
	}

	if tag.RowsAffected() == 0 {
		// Distinguish missing from already revoked
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM signatures WHERE id = $1)`, id).Scan(&exists); err != nil {
			return mapPostgresError(err)
		}
		if !exists {
			return store.ErrSignatureNotFound
		}
		return store.ErrAlreadyRevoked
	}

	log.Info().Stringer("signature_id", id).Str("reason", reason).Msg("Signature revoked")
	return nil
}

func scanSignature(row pgx.Row) (*models.SignatureRecord, error) {
	var (
		rec          models.SignatureRecord
		certJSON     []byte
		tsJSON       []byte
		signingJSON  []byte
		templateJSON []byte
		metadataJSON []byte
	)

	err := row.Scan(
		&rec.ID,
		&rec.TargetType,
		&rec.TargetID,
		&rec.SignerID,
		&rec.SignerName,
		&rec.SignerRole,
		&rec.DataHash,
		&rec.SignatureValue,
		&certJSON,
		&tsJSON,
		&signingJSON,
		&templateJSON,
		&rec.BatchID,
		&rec.Purpose,
		&metadataJSON,
		&rec.Status,
		&rec.RevokedReason,
		&rec.RevokedBy,
		&rec.RevokedAt,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(certJSON, &rec.Certificate); err != nil {
		return nil, fmt.Errorf("failed to unmarshal certificate: %w", err)
	}
	if err := json.Unmarshal(tsJSON, &rec.Timestamp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal timestamp info: %w", err)
	}
	if err := json.Unmarshal(signingJSON, &rec.Signing); err != nil {
		return nil, fmt.Errorf("failed to unmarshal signing info: %w", err)
	}
	if len(templateJSON) > 0 {
		rec.Template = &models.TemplateRef{}
		if err := json.Unmarshal(templateJSON, rec.Template); err != nil {
			return nil, fmt.Errorf("failed to unmarshal template ref: %w", err)
		}
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &rec, nil
}
