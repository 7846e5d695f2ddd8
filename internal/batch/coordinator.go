// Package batch drives the signing orchestrator over a list of items,
// isolating per-item failure and rolling up aggregate statistics. One bad
// document must never block the rest of the batch.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/medichain/docsign/internal/models"
	"github.com/medichain/docsign/internal/signing"
	"github.com/medichain/docsign/internal/store"
	"github.com/medichain/docsign/internal/telemetry"
)

// ErrEmptyBatch is returned when a batch is created without items.
var ErrEmptyBatch = errors.New("batch requires at least one item")

// ItemSpec describes one unit of work in a batch creation request.
type ItemSpec struct {
	TargetID   string
	TargetType models.TargetType // empty = batch default
	Document   map[string]any
	Overrides  models.BatchItemOverrides
}

// CreateRequest describes a bulk-signing job. Batch-level settings are
// defaults; item-level overrides win.
type CreateRequest struct {
	Name       string
	TargetType models.TargetType
	TemplateID *uuid.UUID
	CAProvider string
	UseHSM     bool

	// RequireTimestamp defaults to true when nil; timestamping must be
	// explicitly disabled.
	RequireTimestamp *bool

	SignerID string
	Items    []ItemSpec
}

// Coordinator runs batches against the signing orchestrator.
type Coordinator struct {
	batches      store.BatchStore
	templates    store.TemplateStore
	orchestrator *signing.Orchestrator
	metrics      *telemetry.Metrics
}

// NewCoordinator creates a batch coordinator.
func NewCoordinator(batches store.BatchStore, templates store.TemplateStore, orchestrator *signing.Orchestrator) *Coordinator {
	return &Coordinator{
		batches:      batches,
		templates:    templates,
		orchestrator: orchestrator,
		metrics:      telemetry.GetMetrics(),
	}
}

// itemOutcome is the tagged per-item result collected into the aggregate.
type itemOutcome struct {
	signatureID uuid.UUID
	dataHash    string
	err         error
}

func (o itemOutcome) completed() bool { return o.err == nil }

// Create validates the request, persists the batch as processing, then runs
// every item sequentially through the orchestrator. Per-item failure is
// recorded on that item without aborting siblings. The final status is
// completed with no failures, failed with no successes, partial otherwise.
func (c *Coordinator) Create(ctx context.Context, req CreateRequest, actor string) (*models.SignatureBatch, error) {
	started := time.Now()

	if len(req.Items) == 0 {
		return nil, ErrEmptyBatch
	}

	// Fail fast on an unusable template before doing any signing work
	if req.TemplateID != nil {
		tpl, err := c.templates.Get(ctx, *req.TemplateID)
		if err != nil {
			return nil, fmt.Errorf("batch template: %w", err)
		}
		if !tpl.Usable() {
			return nil, fmt.Errorf("batch template %s is %s", tpl.Name, tpl.Status)
		}
	}

	batch := &models.SignatureBatch{
		ID:               newBatchID(),
		Name:             req.Name,
		TargetType:       req.TargetType,
		TemplateID:       req.TemplateID,
		CAProvider:       req.CAProvider,
		UseHSM:           req.UseHSM,
		RequireTimestamp: req.RequireTimestamp == nil || *req.RequireTimestamp,
		SignerID:         req.SignerID,
		Status:           models.BatchStatusProcessing,
		Stats:            models.BatchStats{Total: len(req.Items), Pending: len(req.Items)},
		Items:            make([]models.BatchItem, len(req.Items)),
		CreatedBy:        actor,
		CreatedAt:        time.Now(),
	}

	for i, spec := range req.Items {
		targetType := spec.TargetType
		if targetType == "" {
			targetType = req.TargetType
		}
		batch.Items[i] = models.BatchItem{
			TargetID:   spec.TargetID,
			TargetType: targetType,
			Document:   spec.Document,
			Overrides:  spec.Overrides,
			Status:     models.BatchItemStatusPending,
		}
	}

	if err := c.batches.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to persist batch: %w", err)
	}

	c.metrics.BatchesCreatedTotal.Add(ctx, 1)

	// Items run sequentially so side effects land in deterministic order and
	// failure isolation stays trivial to reason about.
	for i := range batch.Items {
		outcome := c.processItem(ctx, batch, &batch.Items[i])
		c.metrics.BatchItemsTotal.Add(ctx, 1)
		if !outcome.completed() {
			c.metrics.BatchItemFailuresTotal.Add(ctx, 1)
		}
	}

	// Aggregate only after every item has reached a terminal state
	stats := models.BatchStats{Total: len(batch.Items)}
	for _, item := range batch.Items {
		switch item.Status {
		case models.BatchItemStatusCompleted:
			stats.Success++
		case models.BatchItemStatusFailed:
			stats.Failed++
		default:
			stats.Pending++
		}
	}
	batch.Stats = stats

	switch {
	case stats.Failed == 0:
		batch.Status = models.BatchStatusCompleted
	case stats.Success == 0:
		batch.Status = models.BatchStatusFailed
	default:
		batch.Status = models.BatchStatusPartial
	}

	completedAt := time.Now()
	batch.CompletedAt = &completedAt

	if err := c.batches.Update(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to update batch: %w", err)
	}

	c.metrics.BatchDuration.Record(ctx, float64(time.Since(started).Milliseconds()))

	log.Info().
		Stringer("batch_id", batch.ID).
		Str("status", batch.Status).
		Int("total", stats.Total).
		Int("success", stats.Success).
		Int("failed", stats.Failed).
		Msg("batch processed")

	return batch, nil
}

// processItem runs one item through the orchestrator and records the terminal
// state on the item. Any orchestrator error is converted into the item's
// failed state here; it never propagates to sibling items.
func (c *Coordinator) processItem(ctx context.Context, batch *models.SignatureBatch, item *models.BatchItem) itemOutcome {
	now := time.Now()
	item.Status = models.BatchItemStatusProcessing
	item.StartedAt = &now
	item.Attempts++

	res, err := c.orchestrator.Sign(ctx, c.itemSignRequest(batch, item))

	completedAt := time.Now()
	item.CompletedAt = &completedAt

	if err != nil {
		item.Status = models.BatchItemStatusFailed
		item.ErrorMessage = err.Error()
		log.Warn().
			Stringer("batch_id", batch.ID).
			Str("target_id", item.TargetID).
			Err(err).
			Msg("batch item failed")
		return itemOutcome{err: err}
	}

	item.Status = models.BatchItemStatusCompleted
	item.SignatureID = &res.SignatureID
	item.DataHash = res.DataHash
	return itemOutcome{signatureID: res.SignatureID, dataHash: res.DataHash}
}

// itemSignRequest merges batch defaults with item overrides; item-level
// settings always win.
func (c *Coordinator) itemSignRequest(batch *models.SignatureBatch, item *models.BatchItem) signing.SignRequest {
	opts := signing.SignOptions{
		CAProvider:   batch.CAProvider,
		UseHSM:       batch.UseHSM,
		TemplateID:   batch.TemplateID,
		TemplateData: item.Overrides.TemplateData,
		Metadata:     item.Overrides.Metadata,
		Purpose:      item.Overrides.Purpose,
		BatchID:      &batch.ID,
	}

	requireTimestamp := batch.RequireTimestamp
	opts.RequireTimestamp = &requireTimestamp

	if item.Overrides.CAProvider != "" {
		opts.CAProvider = item.Overrides.CAProvider
	}
	if item.Overrides.UseHSM != nil {
		opts.UseHSM = *item.Overrides.UseHSM
	}
	if item.Overrides.RequireTimestamp != nil {
		opts.RequireTimestamp = item.Overrides.RequireTimestamp
	}
	if item.Overrides.TemplateID != nil {
		opts.TemplateID = item.Overrides.TemplateID
	}

	return signing.SignRequest{
		TargetType: item.TargetType,
		TargetID:   item.TargetID,
		SignerID:   batch.SignerID,
		Document:   item.Document,
		Options:    opts,
	}
}

// Get returns a batch by id.
func (c *Coordinator) Get(ctx context.Context, id uuid.UUID) (*models.SignatureBatch, error) {
	return c.batches.Get(ctx, id)
}

// List returns batches matching the filter.
func (c *Coordinator) List(ctx context.Context, opts store.ListBatchesOptions) ([]*models.SignatureBatch, error) {
	return c.batches.List(ctx, opts)
}

func newBatchID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
