package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/medichain/docsign/internal/models"
	"github.com/medichain/docsign/internal/store"
)

// TemplateStore is an in-memory implementation of store.TemplateStore.
type TemplateStore struct {
	mu        sync.RWMutex
	templates map[uuid.UUID]*models.SignatureTemplate
}

// NewTemplateStore creates a new in-memory template store.
func NewTemplateStore() *TemplateStore {
	return &TemplateStore{
		templates: make(map[uuid.UUID]*models.SignatureTemplate),
	}
}

// Create stores a new template at version 1.
func (s *TemplateStore) Create(ctx context.Context, tpl *models.SignatureTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.templates[tpl.ID]; exists {
		return store.ErrTemplateExists
	}

	cp := copyTemplate(tpl)
	if cp.Version == 0 {
		cp.Version = 1
	}
	s.templates[tpl.ID] = cp
	return nil
}

// Get retrieves a template by id.
func (s *TemplateStore) Get(ctx context.Context, id uuid.UUID) (*models.SignatureTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tpl, exists := s.templates[id]
	if !exists {
		return nil, store.ErrTemplateNotFound
	}

	return copyTemplate(tpl), nil
}

// Update replaces a template's mutable fields and increments its version.
func (s *TemplateStore) Update(ctx context.Context, tpl *models.SignatureTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.templates[tpl.ID]
	if !exists {
		return store.ErrTemplateNotFound
	}

	cp := copyTemplate(tpl)
	cp.Version = existing.Version + 1
	cp.CreatedAt = existing.CreatedAt
	s.templates[tpl.ID] = cp
	tpl.Version = cp.Version
	return nil
}

// List returns all templates, optionally filtered by status.
func (s *TemplateStore) List(ctx context.Context, status string) ([]*models.SignatureTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*models.SignatureTemplate{}
	for _, tpl := range s.templates {
		if status != "" && tpl.Status != status {
			continue
		}
		result = append(result, copyTemplate(tpl))
	}

	return result, nil
}

func copyTemplate(tpl *models.SignatureTemplate) *models.SignatureTemplate {
	cp := *tpl
	cp.Fields = make([]models.TemplateField, len(tpl.Fields))
	copy(cp.Fields, tpl.Fields)
	cp.DefaultPayload = copyMap(tpl.DefaultPayload)
	cp.DefaultMetadata = copyMap(tpl.DefaultMetadata)
	return &cp
}
