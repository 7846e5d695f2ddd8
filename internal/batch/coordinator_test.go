package batch

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/medichain/docsign/internal/ca"
	"github.com/medichain/docsign/internal/hsm"
	"github.com/medichain/docsign/internal/models"
	"github.com/medichain/docsign/internal/signing"
	"github.com/medichain/docsign/internal/store"
	"github.com/medichain/docsign/internal/store/memory"
	"github.com/medichain/docsign/internal/template"
	"github.com/medichain/docsign/internal/tsa"
)

type testHarness struct {
	coordinator *Coordinator
	signatures  *memory.SignatureStore
	templates   *memory.TemplateStore
	batches     *memory.BatchStore
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	signatures := memory.NewSignatureStore()
	templates := memory.NewTemplateStore()
	batches := memory.NewBatchStore()
	signers := memory.NewSignerStore()

	require.NoError(t, signers.Put(context.Background(), &models.Signer{
		ID:     "signer-1",
		Name:   "Jane Pharmacist",
		Role:   "qa_manager",
		Active: true,
	}))

	gateway := hsm.NewGateway(false, "mock")
	gateway.RegisterProvider(hsm.NewMockProvider("mock"))

	orchestrator := signing.NewOrchestrator(signing.OrchestratorConfig{
		Signatures: signatures,
		Signers:    signers,
		Registry:   ca.NewRegistry(memory.NewCAProviderStore(), ""),
		Templates:  template.NewEngine(templates),
		Gateway:    gateway,
		TSA:        tsa.NewMockClient(),
		Local:      signing.NewLocalSigner(nil, true),
	})

	return &testHarness{
		coordinator: NewCoordinator(batches, templates, orchestrator),
		signatures:  signatures,
		templates:   templates,
		batches:     batches,
	}
}

func drugItems(ids ...string) []ItemSpec {
	items := make([]ItemSpec, len(ids))
	for i, id := range ids {
		items[i] = ItemSpec{
			TargetID: id,
			Document: map[string]any{"batchNumber": id, "qty": 10},
		}
	}
	return items
}

func TestCoordinator_AllItemsSucceed(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	batch, err := h.coordinator.Create(ctx, CreateRequest{
		Name:       "release 2026-W35",
		TargetType: models.TargetTypeDrug,
		CAProvider: "vnca",
		SignerID:   "signer-1",
		Items:      drugItems("drug-1", "drug-2", "drug-3"),
	}, "ops@medichain")
	require.NoError(t, err)

	require.Equal(t, models.BatchStatusCompleted, batch.Status)
	require.True(t, batch.Terminal())
	require.NotNil(t, batch.CompletedAt)
	require.Equal(t, models.BatchStats{Total: 3, Success: 3}, batch.Stats)

	for _, item := range batch.Items {
		require.Equal(t, models.BatchItemStatusCompleted, item.Status)
		require.NotNil(t, item.SignatureID)
		require.Len(t, item.DataHash, 64)
		require.Equal(t, 1, item.Attempts)

		rec, err := h.signatures.Get(ctx, *item.SignatureID)
		require.NoError(t, err)
		require.NotNil(t, rec.BatchID)
		require.Equal(t, batch.ID, *rec.BatchID)
	}

	// Terminal state is persisted, not just returned
	stored, err := h.batches.Get(ctx, batch.ID)
	require.NoError(t, err)
	require.Equal(t, models.BatchStatusCompleted, stored.Status)
}

func TestCoordinator_PartialFailureIsolatesItems(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	tplID, err := uuid.NewV7()
	require.NoError(t, err)
	tpl := &models.SignatureTemplate{
		ID:         tplID,
		Name:       "drug release",
		Status:     models.TemplateStatusActive,
		TargetType: models.TargetTypeDrug,
		Fields: []models.TemplateField{
			{Key: "lotNumber", Type: "string", Required: true},
		},
	}
	require.NoError(t, h.templates.Create(ctx, tpl))

	items := []ItemSpec{
		{TargetID: "drug-1", Document: map[string]any{"qty": 1},
			Overrides: models.BatchItemOverrides{TemplateData: map[string]any{"lotNumber": "L1"}}},
		{TargetID: "drug-2", Document: map[string]any{"qty": 2}}, // missing lotNumber
		{TargetID: "drug-3", Document: map[string]any{"qty": 3},
			Overrides: models.BatchItemOverrides{TemplateData: map[string]any{"lotNumber": "L3"}}},
	}

	batch, err := h.coordinator.Create(ctx, CreateRequest{
		Name:       "templated release",
		TargetType: models.TargetTypeDrug,
		TemplateID: &tpl.ID,
		SignerID:   "signer-1",
		Items:      items,
	}, "ops@medichain")
	require.NoError(t, err)

	require.Equal(t, models.BatchStatusPartial, batch.Status)
	require.Equal(t, models.BatchStats{Total: 3, Success: 2, Failed: 1}, batch.Stats)

	require.Equal(t, models.BatchItemStatusCompleted, batch.Items[0].Status)
	require.Equal(t, models.BatchItemStatusFailed, batch.Items[1].Status)
	require.Contains(t, batch.Items[1].ErrorMessage, "lotNumber")
	require.Nil(t, batch.Items[1].SignatureID)
	require.Equal(t, models.BatchItemStatusCompleted, batch.Items[2].Status)
}

func TestCoordinator_AllItemsFail(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	batch, err := h.coordinator.Create(ctx, CreateRequest{
		Name:       "unknown signer",
		TargetType: models.TargetTypeDrug,
		SignerID:   "ghost",
		Items:      drugItems("drug-1", "drug-2"),
	}, "ops@medichain")
	require.NoError(t, err)

	require.Equal(t, models.BatchStatusFailed, batch.Status)
	require.Equal(t, models.BatchStats{Total: 2, Failed: 2}, batch.Stats)
	for _, item := range batch.Items {
		require.Equal(t, models.BatchItemStatusFailed, item.Status)
		require.NotEmpty(t, item.ErrorMessage)
	}
}

func TestCoordinator_EmptyBatchRejected(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.coordinator.Create(context.Background(), CreateRequest{
		Name:     "empty",
		SignerID: "signer-1",
	}, "ops@medichain")
	require.ErrorIs(t, err, ErrEmptyBatch)
}

func TestCoordinator_ArchivedTemplateRejectedUpFront(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	tplID, err := uuid.NewV7()
	require.NoError(t, err)
	tpl := &models.SignatureTemplate{
		ID:         tplID,
		Name:       "retired",
		Status:     models.TemplateStatusArchived,
		TargetType: models.TargetTypeDrug,
	}
	require.NoError(t, h.templates.Create(ctx, tpl))

	_, err = h.coordinator.Create(ctx, CreateRequest{
		Name:       "should not start",
		TargetType: models.TargetTypeDrug,
		TemplateID: &tpl.ID,
		SignerID:   "signer-1",
		Items:      drugItems("drug-1"),
	}, "ops@medichain")
	require.Error(t, err)
	require.Contains(t, err.Error(), "archived")

	// Nothing was persisted or signed
	batches, err := h.batches.List(ctx, store.ListBatchesOptions{})
	require.NoError(t, err)
	require.Empty(t, batches)
}

func TestCoordinator_ItemOverridesWinOverBatchDefaults(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	items := drugItems("drug-1", "drug-2")
	items[1].Overrides.CAProvider = "FPT-CA"

	batch, err := h.coordinator.Create(ctx, CreateRequest{
		Name:       "mixed CAs",
		TargetType: models.TargetTypeDrug,
		CAProvider: "vnca",
		SignerID:   "signer-1",
		Items:      items,
	}, "ops@medichain")
	require.NoError(t, err)
	require.Equal(t, models.BatchStatusCompleted, batch.Status)

	first, err := h.signatures.Get(ctx, *batch.Items[0].SignatureID)
	require.NoError(t, err)
	require.Equal(t, "VNCA", first.Certificate.ProviderID)

	second, err := h.signatures.Get(ctx, *batch.Items[1].SignatureID)
	require.NoError(t, err)
	require.Equal(t, "FPT-CA", second.Certificate.ProviderID)
}

func TestCoordinator_TimestampsRequiredByDefault(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	batch, err := h.coordinator.Create(ctx, CreateRequest{
		Name:       "defaults",
		TargetType: models.TargetTypeDrug,
		SignerID:   "signer-1",
		Items:      drugItems("drug-1"),
	}, "ops@medichain")
	require.NoError(t, err)
	require.Equal(t, models.BatchStatusCompleted, batch.Status)
	require.True(t, batch.RequireTimestamp)

	rec, err := h.signatures.Get(ctx, *batch.Items[0].SignatureID)
	require.NoError(t, err)
	require.Equal(t, models.TimestampStatusVerified, rec.Timestamp.Status)
}

func TestCoordinator_TimestampsExplicitlyDisabled(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	noTimestamp := false
	batch, err := h.coordinator.Create(ctx, CreateRequest{
		Name:             "no timestamps",
		TargetType:       models.TargetTypeDrug,
		RequireTimestamp: &noTimestamp,
		SignerID:         "signer-1",
		Items:            drugItems("drug-1"),
	}, "ops@medichain")
	require.NoError(t, err)
	require.False(t, batch.RequireTimestamp)

	rec, err := h.signatures.Get(ctx, *batch.Items[0].SignatureID)
	require.NoError(t, err)
	require.Equal(t, models.TimestampStatusNotRequired, rec.Timestamp.Status)
}

func TestCoordinator_GetAndList(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	created, err := h.coordinator.Create(ctx, CreateRequest{
		Name:       "single",
		TargetType: models.TargetTypeDrug,
		SignerID:   "signer-1",
		Items:      drugItems("drug-1"),
	}, "ops@medichain")
	require.NoError(t, err)

	got, err := h.coordinator.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)

	_, err = h.coordinator.Get(ctx, uuid.New())
	require.ErrorIs(t, err, store.ErrBatchNotFound)

	completed, err := h.coordinator.List(ctx, store.ListBatchesOptions{Status: models.BatchStatusCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
}
