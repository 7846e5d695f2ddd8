package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/medichain/docsign/internal/models"
	"github.com/medichain/docsign/internal/store"
)

// BatchStore is an in-memory implementation of store.BatchStore.
type BatchStore struct {
	mu      sync.RWMutex
	batches map[uuid.UUID]*models.SignatureBatch
	order   []uuid.UUID
}

// NewBatchStore creates a new in-memory batch store.
func NewBatchStore() *BatchStore {
	return &BatchStore{
		batches: make(map[uuid.UUID]*models.SignatureBatch),
	}
}

// Create stores a new batch.
func (s *BatchStore) Create(ctx context.Context, batch *models.SignatureBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batches[batch.ID] = copyBatch(batch)
	s.order = append(s.order, batch.ID)
	return nil
}

// Get retrieves a batch by id, including its items.
func (s *BatchStore) Get(ctx context.Context, id uuid.UUID) (*models.SignatureBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch, exists := s.batches[id]
	if !exists {
		return nil, store.ErrBatchNotFound
	}

	return copyBatch(batch), nil
}

// Update replaces the stored batch.
func (s *BatchStore) Update(ctx context.Context, batch *models.SignatureBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.batches[batch.ID]; !exists {
		return store.ErrBatchNotFound
	}

	s.batches[batch.ID] = copyBatch(batch)
	return nil
}

// List returns batches matching the given filters in insertion order.
func (s *BatchStore) List(ctx context.Context, opts store.ListBatchesOptions) ([]*models.SignatureBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	result := []*models.SignatureBatch{}
	skipped := 0
	for _, id := range s.order {
		batch := s.batches[id]
		if opts.TargetType != "" && batch.TargetType != opts.TargetType {
			continue
		}
		if opts.Status != "" && batch.Status != opts.Status {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		result = append(result, copyBatch(batch))
		if len(result) >= limit {
			break
		}
	}

	return result, nil
}

func copyBatch(batch *models.SignatureBatch) *models.SignatureBatch {
	cp := *batch
	if batch.TemplateID != nil {
		tplID := *batch.TemplateID
		cp.TemplateID = &tplID
	}
	if batch.CompletedAt != nil {
		completedAt := *batch.CompletedAt
		cp.CompletedAt = &completedAt
	}
	cp.Items = make([]models.BatchItem, len(batch.Items))
	for i, item := range batch.Items {
		cp.Items[i] = copyBatchItem(item)
	}
	return &cp
}

func copyBatchItem(item models.BatchItem) models.BatchItem {
	cp := item
	cp.Document = copyMap(item.Document)
	if item.SignatureID != nil {
		sigID := *item.SignatureID
		cp.SignatureID = &sigID
	}
	if item.StartedAt != nil {
		startedAt := *item.StartedAt
		cp.StartedAt = &startedAt
	}
	if item.CompletedAt != nil {
		completedAt := *item.CompletedAt
		cp.CompletedAt = &completedAt
	}
	if item.Overrides.TemplateID != nil {
		tplID := *item.Overrides.TemplateID
		cp.Overrides.TemplateID = &tplID
	}
	cp.Overrides.TemplateData = copyMap(item.Overrides.TemplateData)
	cp.Overrides.Metadata = copyMap(item.Overrides.Metadata)
	return cp
}
