package models

import (
	"time"

	"github.com/google/uuid"
)

// BatchStatus is the overall status of a bulk-signing job.
// pending -> processing -> completed | failed | partial (terminal).
const (
	BatchStatusPending    = "pending"
	BatchStatusProcessing = "processing"
	BatchStatusCompleted  = "completed"
	BatchStatusFailed     = "failed"
	BatchStatusPartial    = "partial"
)

// BatchItemStatus is the status of one item within a batch.
// pending -> processing -> completed | failed (terminal, independent of siblings).
const (
	BatchItemStatusPending    = "pending"
	BatchItemStatusProcessing = "processing"
	BatchItemStatusCompleted  = "completed"
	BatchItemStatusFailed     = "failed"
)

// BatchStats aggregates item outcomes for a batch.
type BatchStats struct {
	Total   int
	Success int
	Failed  int
	Pending int
}

// BatchItemOverrides carries per-item options that win over the batch-level
// defaults.
type BatchItemOverrides struct {
	CAProvider       string
	UseHSM           *bool
	RequireTimestamp *bool
	TemplateID       *uuid.UUID
	TemplateData     map[string]any
	Metadata         map[string]any
	Purpose          string
}

// BatchItem is one unit of work within a bulk-signing job.
type BatchItem struct {
	TargetID   string
	TargetType TargetType
	Document   map[string]any
	Overrides  BatchItemOverrides

	Status       string // BatchItemStatus*
	SignatureID  *uuid.UUID
	DataHash     string
	Attempts     int
	ErrorMessage string

	StartedAt   *time.Time
	CompletedAt *time.Time
}

// SignatureBatch is a bulk-signing job driven sequentially over its items.
type SignatureBatch struct {
	ID   uuid.UUID // UUIDv7
	Name string

	TargetType       TargetType
	TemplateID       *uuid.UUID
	CAProvider       string
	UseHSM           bool
	RequireTimestamp bool
	SignerID         string

	Stats  BatchStats
	Status string // BatchStatus*
	Items  []BatchItem

	CreatedBy   string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Terminal returns true once the batch has reached a final status.
func (b *SignatureBatch) Terminal() bool {
	switch b.Status {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusPartial:
		return true
	}
	return false
}
