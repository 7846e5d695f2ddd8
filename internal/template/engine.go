// Package template resolves reusable structural templates into the payload
// that is merged into signed material. Because the resolved payload itself is
// hashed, the structural contract is tamper-evident alongside the document.
package template

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/medichain/docsign/internal/models"
	"github.com/medichain/docsign/internal/store"
)

// ErrTemplateUnavailable is returned when an archived template is used.
var ErrTemplateUnavailable = errors.New("template is not available for signing")

// MissingFieldError names the required field that was absent after merging
// defaults and overrides.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("required template field %q is missing", e.Field)
}

// Resolved is the outcome of template resolution: the merged payload and the
// template metadata that gets snapshotted onto the signature record.
type Resolved struct {
	TemplateID uuid.UUID
	Name       string
	Version    int
	Payload    map[string]any
	TargetType models.TargetType
	CAProvider string
	Metadata   map[string]any
	Purpose    string
}

// Engine merges template defaults with per-call overrides and validates
// required fields before signing.
type Engine struct {
	templates store.TemplateStore
}

// NewEngine creates a template engine over the given store.
func NewEngine(templates store.TemplateStore) *Engine {
	return &Engine{templates: templates}
}

// Resolve loads the template, seeds the payload from its defaults, applies
// caller overrides on top and validates required fields. Only draft or
// active templates may be used.
func (e *Engine) Resolve(ctx context.Context, templateID uuid.UUID, overrides map[string]any) (*Resolved, error) {
	tpl, err := e.templates.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}

	if !tpl.Usable() {
		return nil, fmt.Errorf("%w: %s is %s", ErrTemplateUnavailable, tpl.Name, tpl.Status)
	}

	payload := make(map[string]any, len(tpl.DefaultPayload)+len(tpl.Fields))
	for k, v := range tpl.DefaultPayload {
		payload[k] = v
	}

	// Field defaults fill gaps the default payload left open
	for _, field := range tpl.Fields {
		if field.Default == nil {
			continue
		}
		if _, present := payload[field.Key]; !present {
			payload[field.Key] = field.Default
		}
	}

	// Caller overrides win over every default
	for k, v := range overrides {
		payload[k] = v
	}

	for _, field := range tpl.Fields {
		if !field.Required {
			continue
		}
		if v, present := payload[field.Key]; !present || v == nil {
			return nil, &MissingFieldError{Field: field.Key}
		}
	}

	log.Debug().
		Str("template", tpl.Name).
		Int("version", tpl.Version).
		Int("fields", len(payload)).
		Msg("resolved template payload")

	return &Resolved{
		TemplateID: tpl.ID,
		Name:       tpl.Name,
		Version:    tpl.Version,
		Payload:    payload,
		TargetType: tpl.TargetType,
		CAProvider: tpl.CAProvider,
		Metadata:   tpl.DefaultMetadata,
		Purpose:    tpl.DefaultPurpose,
	}, nil
}
