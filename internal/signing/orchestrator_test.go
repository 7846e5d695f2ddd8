package signing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/medichain/docsign/internal/ca"
	"github.com/medichain/docsign/internal/hsm"
	"github.com/medichain/docsign/internal/models"
	"github.com/medichain/docsign/internal/store"
	"github.com/medichain/docsign/internal/store/memory"
	"github.com/medichain/docsign/internal/template"
	"github.com/medichain/docsign/internal/tsa"
)

type testPipeline struct {
	orchestrator *Orchestrator
	verifier     *Verifier
	signatures   *memory.SignatureStore
	templates    *memory.TemplateStore
	gateway      *hsm.Gateway
	tsaClient    *tsa.MockClient
}

type pipelineOption func(*pipelineConfig)

type pipelineConfig struct {
	hsmEnabled bool
	local      *LocalSigner
}

func withHSMEnabled() pipelineOption {
	return func(cfg *pipelineConfig) { cfg.hsmEnabled = true }
}

func withLocalSigner(ls *LocalSigner) pipelineOption {
	return func(cfg *pipelineConfig) { cfg.local = ls }
}

func newTestPipeline(t *testing.T, opts ...pipelineOption) *testPipeline {
	t.Helper()

	cfg := &pipelineConfig{local: NewLocalSigner(nil, true)}
	for _, opt := range opts {
		opt(cfg)
	}

	signatures := memory.NewSignatureStore()
	templates := memory.NewTemplateStore()
	signers := memory.NewSignerStore()

	require.NoError(t, signers.Put(context.Background(), &models.Signer{
		ID:     "signer-1",
		Name:   "Jane Pharmacist",
		Role:   "qa_manager",
		Active: true,
	}))

	gateway := hsm.NewGateway(cfg.hsmEnabled, "mock")
	gateway.RegisterProvider(hsm.NewMockProvider("mock"))

	tsaClient := tsa.NewMockClient()

	orchestrator := NewOrchestrator(OrchestratorConfig{
		Signatures: signatures,
		Signers:    signers,
		Registry:   ca.NewRegistry(memory.NewCAProviderStore(), ""),
		Templates:  template.NewEngine(templates),
		Gateway:    gateway,
		TSA:        tsaClient,
		Local:      cfg.local,
	})

	return &testPipeline{
		orchestrator: orchestrator,
		verifier:     NewVerifier(signatures, tsaClient),
		signatures:   signatures,
		templates:    templates,
		gateway:      gateway,
		tsaClient:    tsaClient,
	}
}

func drugBatchRequest() SignRequest {
	return SignRequest{
		TargetType: models.TargetTypeDrug,
		TargetID:   "drug-batch-B1",
		SignerID:   "signer-1",
		Document:   map[string]any{"batchNumber": "B1", "qty": 10},
		Options:    SignOptions{CAProvider: "vnca", UseHSM: true},
	}
}

func TestOrchestrator_SignWithHSMDisabledFallsBack(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	res, err := p.orchestrator.Sign(ctx, drugBatchRequest())
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, res.SignatureID)
	require.Len(t, res.DataHash, 64)
	require.False(t, res.Signing.UsedHSM)
	require.True(t, res.Signing.Fallback)
	require.Equal(t, models.SigningMethodMock, res.Signing.Method)
	require.NotEmpty(t, res.Signing.LastError)

	rec, err := p.signatures.Get(ctx, res.SignatureID)
	require.NoError(t, err)
	require.Equal(t, models.SignatureStatusActive, rec.Status)
	require.Equal(t, "Jane Pharmacist", rec.SignerName)
	require.Equal(t, "qa_manager", rec.SignerRole)
	require.Equal(t, "VNCA", rec.Certificate.ProviderID)
	require.Equal(t, res.DataHash, rec.DataHash)
}

func TestOrchestrator_SignWithHSM(t *testing.T) {
	p := newTestPipeline(t, withHSMEnabled())
	ctx := context.Background()

	res, err := p.orchestrator.Sign(ctx, drugBatchRequest())
	require.NoError(t, err)
	require.True(t, res.Signing.UsedHSM)
	require.False(t, res.Signing.Fallback)
	require.Equal(t, models.SigningMethodHSM, res.Signing.Method)
	require.Equal(t, "mock", res.Signing.ProviderID)

	// HSM-signed records verify like any other
	verdict, err := p.verifier.Verify(ctx, res.SignatureID, map[string]any{"batchNumber": "B1", "qty": 10})
	require.NoError(t, err)
	require.True(t, verdict.Valid)
}

func TestOrchestrator_SignWithRealLocalKey(t *testing.T) {
	local, err := NewEphemeralLocalSigner()
	require.NoError(t, err)

	p := newTestPipeline(t, withLocalSigner(local))
	ctx := context.Background()

	req := drugBatchRequest()
	req.Options.UseHSM = false

	res, err := p.orchestrator.Sign(ctx, req)
	require.NoError(t, err)
	require.Equal(t, models.SigningMethodLocal, res.Signing.Method)
	require.False(t, res.Signing.Fallback)

	// The certificate snapshot carries the real public key
	rec, err := p.signatures.Get(ctx, res.SignatureID)
	require.NoError(t, err)
	require.Contains(t, rec.Certificate.PublicKeyPEM, "BEGIN PUBLIC KEY")

	verdict, err := p.verifier.Verify(ctx, res.SignatureID, map[string]any{"batchNumber": "B1", "qty": 10})
	require.NoError(t, err)
	require.True(t, verdict.Valid)
	require.True(t, verdict.Verified)
}

func TestOrchestrator_SignerNotFound(t *testing.T) {
	p := newTestPipeline(t)

	req := drugBatchRequest()
	req.SignerID = "ghost"

	_, err := p.orchestrator.Sign(context.Background(), req)
	require.ErrorIs(t, err, store.ErrSignerNotFound)
}

func TestOrchestrator_NoKeyAndMockDisallowed(t *testing.T) {
	p := newTestPipeline(t, withLocalSigner(NewLocalSigner(nil, false)))

	req := drugBatchRequest()
	req.Options.UseHSM = false

	_, err := p.orchestrator.Sign(context.Background(), req)
	require.ErrorIs(t, err, ErrNoSigningKey)
}

func TestOrchestrator_TSAFailureDoesNotAbort(t *testing.T) {
	p := newTestPipeline(t)
	p.tsaClient.FailTimestamp = true
	ctx := context.Background()

	res, err := p.orchestrator.Sign(ctx, drugBatchRequest())
	require.NoError(t, err)
	require.False(t, res.Timestamped)

	rec, err := p.signatures.Get(ctx, res.SignatureID)
	require.NoError(t, err)
	require.Equal(t, models.TimestampStatusFailed, rec.Timestamp.Status)
}

func TestOrchestrator_TimestampDisabled(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	noTimestamp := false
	req := drugBatchRequest()
	req.Options.RequireTimestamp = &noTimestamp

	res, err := p.orchestrator.Sign(ctx, req)
	require.NoError(t, err)
	require.False(t, res.Timestamped)

	rec, err := p.signatures.Get(ctx, res.SignatureID)
	require.NoError(t, err)
	require.Equal(t, models.TimestampStatusNotRequired, rec.Timestamp.Status)
	require.Empty(t, rec.Timestamp.Token)
}

func TestOrchestrator_SignWithTemplate(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	tplID, err := uuid.NewV7()
	require.NoError(t, err)
	require.NoError(t, p.templates.Create(ctx, &models.SignatureTemplate{
		ID:         tplID,
		Name:       "drug-batch-release",
		Status:     models.TemplateStatusActive,
		TargetType: models.TargetTypeDrug,
		CAProvider: "FPT-CA",
		Fields: []models.TemplateField{
			{Key: "facility", Type: "string", Required: true},
		},
		DefaultPayload: map[string]any{"docType": "batch-release"},
		DefaultPurpose: "batch release approval",
	}))

	t.Run("template payload is hashed and snapshotted", func(t *testing.T) {
		req := drugBatchRequest()
		req.Options.TemplateID = &tplID
		req.Options.TemplateData = map[string]any{"facility": "plant-1"}

		res, err := p.orchestrator.Sign(ctx, req)
		require.NoError(t, err)

		rec, err := p.signatures.Get(ctx, res.SignatureID)
		require.NoError(t, err)
		require.NotNil(t, rec.Template)
		require.Equal(t, "drug-batch-release", rec.Template.Name)
		require.Equal(t, 1, rec.Template.Version)
		require.Equal(t, "plant-1", rec.Template.Payload["facility"])
		require.Equal(t, "batch release approval", rec.Purpose)

		// The template's CA provider wins over the caller's
		require.Equal(t, "FPT-CA", rec.Certificate.ProviderID)

		// Template-wrapped verification reproduces the digest
		verdict, err := p.verifier.Verify(ctx, res.SignatureID, map[string]any{"batchNumber": "B1", "qty": 10})
		require.NoError(t, err)
		require.True(t, verdict.Valid)
	})

	t.Run("missing required template field aborts", func(t *testing.T) {
		req := drugBatchRequest()
		req.Options.TemplateID = &tplID

		_, err := p.orchestrator.Sign(ctx, req)
		var missing *template.MissingFieldError
		require.ErrorAs(t, err, &missing)
		require.Equal(t, "facility", missing.Field)
	})
}

func TestOrchestrator_HashDeterminism(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	res1, err := p.orchestrator.Sign(ctx, drugBatchRequest())
	require.NoError(t, err)

	res2, err := p.orchestrator.Sign(ctx, drugBatchRequest())
	require.NoError(t, err)

	require.Equal(t, res1.DataHash, res2.DataHash)
	require.NotEqual(t, res1.SignatureID, res2.SignatureID)
}

func TestOrchestrator_Revoke(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	res, err := p.orchestrator.Sign(ctx, drugBatchRequest())
	require.NoError(t, err)

	require.NoError(t, p.orchestrator.Revoke(ctx, res.SignatureID, "recalled", "admin-1"))

	// Second revoke fails cleanly, it does not double-mutate
	err = p.orchestrator.Revoke(ctx, res.SignatureID, "again", "admin-2")
	require.ErrorIs(t, err, store.ErrAlreadyRevoked)

	rec, err := p.signatures.Get(ctx, res.SignatureID)
	require.NoError(t, err)
	require.Equal(t, "recalled", rec.RevokedReason)
	require.Equal(t, "admin-1", rec.RevokedBy)
}
