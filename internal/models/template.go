package models

import (
	"time"

	"github.com/google/uuid"
)

// TemplateStatus is the lifecycle status of a signature template.
const (
	TemplateStatusDraft    = "draft"
	TemplateStatusActive   = "active"
	TemplateStatusArchived = "archived"
)

// TemplateField is one entry in a template's ordered field list.
type TemplateField struct {
	Key      string
	Type     string // "string", "number", "boolean", "object", "array"
	Required bool
	Default  any
}

// SignatureTemplate is a named, versioned structural contract merged into the
// signed payload. Version increments on every update.
type SignatureTemplate struct {
	ID      uuid.UUID // UUIDv7
	Name    string
	Version int
	Status  string // TemplateStatus*

	TargetType TargetType
	CAProvider string

	Fields          []TemplateField
	DefaultPayload  map[string]any
	DefaultMetadata map[string]any
	DefaultPurpose  string

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Usable returns true if the template may be used for signing. Archived
// templates are rejected at resolution time.
func (t *SignatureTemplate) Usable() bool {
	return t.Status == TemplateStatusDraft || t.Status == TemplateStatusActive
}
