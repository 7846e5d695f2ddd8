package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medichain/docsign/internal/models"
	"github.com/medichain/docsign/internal/store"
)

// SignatureStore is an in-memory implementation of store.SignatureStore for
// development and testing.
type SignatureStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*models.SignatureRecord
	order   []uuid.UUID // insertion order for stable listing
}

// NewSignatureStore creates a new in-memory signature store.
func NewSignatureStore() *SignatureStore {
	return &SignatureStore{
		records: make(map[uuid.UUID]*models.SignatureRecord),
	}
}

// Create stores a new signature record.
func (s *SignatureStore) Create(ctx context.Context, rec *models.SignatureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.ID] = copyRecord(rec)
	s.order = append(s.order, rec.ID)
	return nil
}

// Get retrieves a signature record by id.
func (s *SignatureStore) Get(ctx context.Context, id uuid.UUID) (*models.SignatureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[id]
	if !exists {
		return nil, store.ErrSignatureNotFound
	}

	// Return a copy to avoid external modifications
	return copyRecord(rec), nil
}

// List returns signature records matching the given filters in insertion order.
func (s *SignatureStore) List(ctx context.Context, opts store.ListSignaturesOptions) ([]*models.SignatureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	result := []*models.SignatureRecord{}
	skipped := 0
	for _, id := range s.order {
		rec := s.records[id]
		if !matchSignature(rec, opts) {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		result = append(result, copyRecord(rec))
		if len(result) >= limit {
			break
		}
	}

	return result, nil
}

// Revoke marks a signature as revoked. A second revocation fails cleanly with
// store.ErrAlreadyRevoked rather than double-mutating.
func (s *SignatureStore) Revoke(ctx context.Context, id uuid.UUID, reason, revokedBy string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[id]
	if !exists {
		return store.ErrSignatureNotFound
	}

	if rec.Status != models.SignatureStatusActive {
		return store.ErrAlreadyRevoked
	}

	rec.Status = models.SignatureStatusRevoked
	rec.RevokedReason = reason
	rec.RevokedBy = revokedBy
	revokedAt := at
	rec.RevokedAt = &revokedAt
	return nil
}

func matchSignature(rec *models.SignatureRecord, opts store.ListSignaturesOptions) bool {
	if opts.TargetType != "" && rec.TargetType != opts.TargetType {
		return false
	}
	if opts.TargetID != "" && rec.TargetID != opts.TargetID {
		return false
	}
	if opts.SignerID != "" && rec.SignerID != opts.SignerID {
		return false
	}
	if opts.BatchID != nil && (rec.BatchID == nil || *rec.BatchID != *opts.BatchID) {
		return false
	}
	if opts.Status != "" && rec.Status != opts.Status {
		return false
	}
	return true
}

func copyRecord(rec *models.SignatureRecord) *models.SignatureRecord {
	cp := *rec
	if rec.BatchID != nil {
		batchID := *rec.BatchID
		cp.BatchID = &batchID
	}
	if rec.RevokedAt != nil {
		revokedAt := *rec.RevokedAt
		cp.RevokedAt = &revokedAt
	}
	if rec.Timestamp.TimestampedAt != nil {
		ts := *rec.Timestamp.TimestampedAt
		cp.Timestamp.TimestampedAt = &ts
	}
	if rec.Template != nil {
		tpl := *rec.Template
		tpl.Payload = copyMap(rec.Template.Payload)
		cp.Template = &tpl
	}
	cp.Metadata = copyMap(rec.Metadata)
	return &cp
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
