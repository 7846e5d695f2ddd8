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

	"github.com/medichain/docsign/internal/models"
	"github.com/medichain/docsign/internal/store"
)

// TemplateStore implements store.TemplateStore using PostgreSQL.
type TemplateStore struct {
	pool *pgxpool.Pool
}

// NewTemplateStore creates a PostgreSQL-backed template store.
func NewTemplateStore(pool *pgxpool.Pool) *TemplateStore {
	return &TemplateStore{pool: pool}
}

const templateColumns = `
	id, name, version, status, target_type, ca_provider,
	fields, default_payload, default_metadata, default_purpose,
	created_by, created_at, updated_at`

// Create stores a new template at version 1.
func (s *TemplateStore) Create(ctx context.Context, tpl *models.SignatureTemplate) error {
	fieldsJSON, payloadJSON, metadataJSON, err := marshalTemplateJSON(tpl)
	if err != nil {
		return err
	}

	version := tpl.Version
	if version == 0 {
		version = 1
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO templates (`+templateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		tpl.ID,
		tpl.Name,
		version,
		tpl.Status,
		tpl.TargetType,
		tpl.CAProvider,
		fieldsJSON,
		payloadJSON,
		metadataJSON,
		tpl.DefaultPurpose,
		tpl.CreatedBy,
		tpl.CreatedAt,
		tpl.UpdatedAt,
	)
	if err != nil {
		return mapPostgresError(err)
	}

	return nil
}

// Get retrieves a template by id.
func (s *TemplateStore) Get(ctx context.Context, id uuid.UUID) (*models.SignatureTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE id = $1`

	tpl, err := scanTemplate(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrTemplateNotFound
		}
		return nil, mapPostgresError(err)
	}

	return tpl, nil
}

// Update replaces a template's mutable fields and increments its version
// atomically.
func (s *TemplateStore) Update(ctx context.Context, tpl *models.SignatureTemplate) error {
	fieldsJSON, payloadJSON, metadataJSON, err := marshalTemplateJSON(tpl)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE templates
		SET name = $2, status = $3, target_type = $4, ca_provider = $5,
		    fields = $6, default_payload = $7, default_metadata = $8,
		    default_purpose = $9, version = version + 1, updated_at = $10
		WHERE id = $1
	`,
		tpl.ID,
		tpl.Name,
		tpl.Status,
		tpl.TargetType,
		tpl.CAProvider,
		fieldsJSON,
		payloadJSON,
		metadataJSON,
		tpl.DefaultPurpose,
		time.Now(),
	)
	if err != nil {
		return mapPostgresError(err)
	}

	if tag.RowsAffected() == 0 {
		return store.ErrTemplateNotFound
	}

	return nil
}

// List returns all templates, optionally filtered by status, in creation order.
func (s *TemplateStore) List(ctx context.Context, status string) ([]*models.SignatureTemplate, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM templates
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at ASC
	`

	rows, err := s.pool.Query(ctx, query, status)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	result := []*models.SignatureTemplate{}
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, mapPostgresError(err)
		}
		result = append(result, tpl)
	}

	return result, rows.Err()
}

func marshalTemplateJSON(tpl *models.SignatureTemplate) (fields, payload, metadata []byte, err error) {
	if fields, err = json.Marshal(tpl.Fields); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal fields: %w", err)
	}
	if tpl.DefaultPayload != nil {
		if payload, err = json.Marshal(tpl.DefaultPayload); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal default payload: %w", err)
		}
	}
	if tpl.DefaultMetadata != nil {
		if metadata, err = json.Marshal(tpl.DefaultMetadata); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal default metadata: %w", err)
		}
	}
	return fields, payload, metadata, nil
}

func scanTemplate(row pgx.Row) (*models.SignatureTemplate, error) {
	var (
		tpl          models.SignatureTemplate
		fieldsJSON   []byte
		payloadJSON  []byte
		metadataJSON []byte
	)

	err := row.Scan(
		&tpl.ID,
		&tpl.Name,
		&tpl.Version,
		&tpl.Status,
		&tpl.TargetType,
		&tpl.CAProvider,
		&fieldsJSON,
		&payloadJSON,
		&metadataJSON,
		&tpl.DefaultPurpose,
		&tpl.CreatedBy,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(fieldsJSON, &tpl.Fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
	}
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &tpl.DefaultPayload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal default payload: %w", err)
		}
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &tpl.DefaultMetadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal default metadata: %w", err)
		}
	}

	return &tpl, nil
}
