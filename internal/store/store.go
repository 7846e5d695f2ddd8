package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medichain/docsign/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrSignatureNotFound = errors.New("signature not found")
	ErrAlreadyRevoked    = errors.New("signature already revoked")
	ErrTemplateNotFound  = errors.New("template not found")
	ErrTemplateExists    = errors.New("template already exists")
	ErrBatchNotFound     = errors.New("batch not found")
	ErrSignerNotFound    = errors.New("signer not found")
	ErrProviderNotFound  = errors.New("CA provider not found")
	ErrDuplicateCode     = errors.New("CA provider code already exists")
)

// ListSignaturesOptions specifies filters for listing signature records.
type ListSignaturesOptions struct {
	TargetType models.TargetType // empty = all
	TargetID   string            // empty = all
	SignerID   string            // empty = all
	BatchID    *uuid.UUID        // nil = all
	Status     string            // empty = all
	Limit      int               // 0 = default
	Offset     int
}

// SignatureStore persists signature records. DataHash and SignatureValue are
// write-once: there is deliberately no update operation other than Revoke.
type SignatureStore interface {
	// Create stores a new signature record.
	Create(ctx context.Context, rec *models.SignatureRecord) error

	// Get retrieves a signature record by id.
	Get(ctx context.Context, id uuid.UUID) (*models.SignatureRecord, error)

	// List returns signature records matching the given filters.
	List(ctx context.Context, opts ListSignaturesOptions) ([]*models.SignatureRecord, error)

	// Revoke marks a signature as revoked. Returns ErrAlreadyRevoked if the
	// record has already left the active state.
	Revoke(ctx context.Context, id uuid.UUID, reason, revokedBy string, at time.Time) error
}

// TemplateStore persists signature templates.
type TemplateStore interface {
	// Create stores a new template at version 1.
	Create(ctx context.Context, tpl *models.SignatureTemplate) error

	// Get retrieves a template by id.
	Get(ctx context.Context, id uuid.UUID) (*models.SignatureTemplate, error)

	// Update replaces a template's mutable fields and increments its version.
	Update(ctx context.Context, tpl *models.SignatureTemplate) error

	// List returns all templates, optionally filtered by status.
	List(ctx context.Context, status string) ([]*models.SignatureTemplate, error)
}

// ListBatchesOptions specifies filters for listing signature batches.
type ListBatchesOptions struct {
	TargetType models.TargetType // empty = all
	Status     string            // empty = all
	Limit      int               // 0 = default
	Offset     int
}

// BatchStore persists bulk-signing jobs.
type BatchStore interface {
	// Create stores a new batch.
	Create(ctx context.Context, batch *models.SignatureBatch) error

	// Get retrieves a batch by id, including its items.
	Get(ctx context.Context, id uuid.UUID) (*models.SignatureBatch, error)

	// Update replaces the stored batch (status, stats and item states).
	Update(ctx context.Context, batch *models.SignatureBatch) error

	// List returns batches matching the given filters.
	List(ctx context.Context, opts ListBatchesOptions) ([]*models.SignatureBatch, error)
}

// SignerStore resolves signer identities.
type SignerStore interface {
	// Get retrieves a signer by id. Returns ErrSignerNotFound if absent.
	Get(ctx context.Context, id string) (*models.Signer, error)

	// Put stores or replaces a signer.
	Put(ctx context.Context, signer *models.Signer) error
}

// CAProviderStore persists custom CA provider registrations. Built-in
// providers are seeded by the registry, not the store.
type CAProviderStore interface {
	// List returns all persisted provider configs.
	List(ctx context.Context) ([]*models.CAProviderConfig, error)

	// Put stores or replaces a provider config keyed by code.
	Put(ctx context.Context, cfg *models.CAProviderConfig) error
}
