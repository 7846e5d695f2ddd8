package memory

import (
	"context"
	"sync"

	"github.com/medichain/docsign/internal/models"
)

// CAProviderStore is an in-memory implementation of store.CAProviderStore.
// It only holds custom registrations; built-in providers live in the registry.
type CAProviderStore struct {
	mu        sync.RWMutex
	providers map[string]*models.CAProviderConfig
}

// NewCAProviderStore creates a new in-memory CA provider store.
func NewCAProviderStore() *CAProviderStore {
	return &CAProviderStore{
		providers: make(map[string]*models.CAProviderConfig),
	}
}

// List returns all persisted provider configs.
func (s *CAProviderStore) List(ctx context.Context) ([]*models.CAProviderConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.CAProviderConfig, 0, len(s.providers))
	for _, cfg := range s.providers {
		cp := *cfg
		result = append(result, &cp)
	}

	return result, nil
}

// Put stores or replaces a provider config keyed by code.
func (s *CAProviderStore) Put(ctx context.Context, cfg *models.CAProviderConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *cfg
	s.providers[cfg.Code] = &cp
	return nil
}
