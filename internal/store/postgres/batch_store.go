package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medichain/docsign/internal/models"
	"github.com/medichain/docsign/internal/store"
)

// BatchStore implements store.BatchStore using PostgreSQL. Items live in
// their own table keyed by (batch_id, position) so per-item state survives a
// process restart mid-batch.
type BatchStore struct {
	pool *pgxpool.Pool
}

// NewBatchStore creates a PostgreSQL-backed batch store.
func NewBatchStore(pool *pgxpool.Pool) *BatchStore {
	return &BatchStore{pool: pool}
}

const batchColumns = `
	id, name, target_type, template_id, ca_provider, use_hsm,
	require_timestamp, signer_id, status, stats, created_by, created_at,
	completed_at`

// Create stores a new batch and its items in one transaction.
func (s *BatchStore) Create(ctx context.Context, batch *models.SignatureBatch) error {
	statsJSON, err := json.Marshal(batch.Stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapPostgresError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	_, err = tx.Exec(ctx, `
		INSERT INTO batches (`+batchColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		batch.ID,
		batch.Name,
		batch.TargetType,
		batch.TemplateID,
		batch.CAProvider,
		batch.UseHSM,
		batch.RequireTimestamp,
		batch.SignerID,
		batch.Status,
		statsJSON,
		batch.CreatedBy,
		batch.CreatedAt,
		batch.CompletedAt,
	)
	if err != nil {
		return mapPostgresError(err)
	}

	if err := insertItems(ctx, tx, batch.ID, batch.Items); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPostgresError(err)
	}

	return nil
}

// Get retrieves a batch by id, including its items in position order.
func (s *BatchStore) Get(ctx context.Context, id uuid.UUID) (*models.SignatureBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1`

	batch, err := scanBatch(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrBatchNotFound
		}
		return nil, mapPostgresError(err)
	}

	if batch.Items, err = s.loadItems(ctx, id); err != nil {
		return nil, err
	}

	return batch, nil
}

// Update replaces the stored batch, its stats and all item states.
func (s *BatchStore) Update(ctx context.Context, batch *models.SignatureBatch) error {
	statsJSON, err := json.Marshal(batch.Stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapPostgresError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	tag, err := tx.Exec(ctx, `
		UPDATE batches
		SET status = $2, stats = $3, completed_at = $4
		WHERE id = $1
	`,
		batch.ID,
		batch.Status,
		statsJSON,
		batch.CompletedAt,
	)
	if err != nil {
		return mapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrBatchNotFound
	}

	// Items are replaced wholesale; positions are stable so this is simpler
	// than diffing item-by-item.
	if _, err = tx.Exec(ctx, `DELETE FROM batch_items WHERE batch_id = $1`, batch.ID); err != nil {
		return mapPostgresError(err)
	}
	if err := insertItems(ctx, tx, batch.ID, batch.Items); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPostgresError(err)
	}

	return nil
}

// List returns batches matching the given filters in creation order. Items
// are not loaded; use Get for the full batch.
func (s *BatchStore) List(ctx context.Context, opts store.ListBatchesOptions) ([]*models.SignatureBatch, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + batchColumns + `
		FROM batches
		WHERE ($1 = '' OR target_type = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at ASC
		LIMIT $3 OFFSET $4
	`

	rows, err := s.pool.Query(ctx, query, string(opts.TargetType), opts.Status, limit, opts.Offset)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	result := []*models.SignatureBatch{}
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, mapPostgresError(err)
		}
		result = append(result, batch)
	}

	return result, rows.Err()
}

func insertItems(ctx context.Context, tx pgx.Tx, batchID uuid.UUID, items []models.BatchItem) error {
	for i, item := range items {
		documentJSON, err := json.Marshal(item.Document)
		if err != nil {
			return fmt.Errorf("failed to marshal item document: %w", err)
		}
		overridesJSON, err := json.Marshal(item.Overrides)
		if err != nil {
			return fmt.Errorf("failed to marshal item overrides: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO batch_items (
				batch_id, position, target_id, target_type, document, overrides,
				status, signature_id, data_hash, attempts, error_message,
				started_at, completed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`,
			batchID,
			i,
			item.TargetID,
			item.TargetType,
			documentJSON,
			overridesJSON,
			item.Status,
			item.SignatureID,
			item.DataHash,
			item.Attempts,
			item.ErrorMessage,
			item.StartedAt,
			item.CompletedAt,
		)
		if err != nil {
			return mapPostgresError(err)
		}
	}

	return nil
}

func (s *BatchStore) loadItems(ctx context.Context, batchID uuid.UUID) ([]models.BatchItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT target_id, target_type, document, overrides, status,
		       signature_id, data_hash, attempts, error_message,
		       started_at, completed_at
		FROM batch_items
		WHERE batch_id = $1
		ORDER BY position ASC
	`, batchID)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	items := []models.BatchItem{}
	for rows.Next() {
		var (
			item          models.BatchItem
			documentJSON  []byte
			overridesJSON []byte
		)

		err := rows.Scan(
			&item.TargetID,
			&item.TargetType,
			&documentJSON,
			&overridesJSON,
			&item.Status,
			&item.SignatureID,
			&item.DataHash,
			&item.Attempts,
			&item.ErrorMessage,
			&item.StartedAt,
			&item.CompletedAt,
		)
		if err != nil {
			return nil, mapPostgresError(err)
		}

		if len(documentJSON) > 0 {
			if err := json.Unmarshal(documentJSON, &item.Document); err != nil {
				return nil, fmt.Errorf("failed to unmarshal item document: %w", err)
			}
		}
		if len(overridesJSON) > 0 {
			if err := json.Unmarshal(overridesJSON, &item.Overrides); err != nil {
				return nil, fmt.Errorf("failed to unmarshal item overrides: %w", err)
			}
		}

		items = append(items, item)
	}

	return items, rows.Err()
}

func scanBatch(row pgx.Row) (*models.SignatureBatch, error) {
	var (
		batch     models.SignatureBatch
		statsJSON []byte
	)

	err := row.Scan(
		&batch.ID,
		&batch.Name,
		&batch.TargetType,
		&batch.TemplateID,
		&batch.CAProvider,
		&batch.UseHSM,
		&batch.RequireTimestamp,
		&batch.SignerID,
		&batch.Status,
		&statsJSON,
		&batch.CreatedBy,
		&batch.CreatedAt,
		&batch.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(statsJSON, &batch.Stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stats: %w", err)
	}

	return &batch, nil
}
