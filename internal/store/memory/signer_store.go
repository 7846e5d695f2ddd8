package memory

import (
	"context"
	"sync"

	"github.com/medichain/docsign/internal/models"
	"github.com/medichain/docsign/internal/store"
)

// SignerStore is an in-memory implementation of store.SignerStore.
type SignerStore struct {
	mu      sync.RWMutex
	signers map[string]*models.Signer
}

// NewSignerStore creates a new in-memory signer store.
func NewSignerStore() *SignerStore {
	return &SignerStore{
		signers: make(map[string]*models.Signer),
	}
}

// Get retrieves a signer by id.
func (s *SignerStore) Get(ctx context.Context, id string) (*models.Signer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	signer, exists := s.signers[id]
	if !exists {
		return nil, store.ErrSignerNotFound
	}

	cp := *signer
	return &cp, nil
}

// Put stores or replaces a signer.
func (s *SignerStore) Put(ctx context.Context, signer *models.Signer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *signer
	s.signers[signer.ID] = &cp
	return nil
}
