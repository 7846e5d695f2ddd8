// Package signing contains the core pipeline: hash the payload, resolve
// certificate info, obtain a signature (HSM with local fallback), optionally
// timestamp via TSA, and persist the signature record — plus the verification
// engine that re-checks all of it later.
package signing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/metric"

	"github.com/medichain/docsign/internal/ca"
	"github.com/medichain/docsign/internal/canonical"
	"github.com/medichain/docsign/internal/hsm"
	"github.com/medichain/docsign/internal/models"
	"github.com/medichain/docsign/internal/store"
	"github.com/medichain/docsign/internal/telemetry"
	"github.com/medichain/docsign/internal/template"
	"github.com/medichain/docsign/internal/tsa"
)

// SignOptions is the caller-supplied options bag for one signing call.
type SignOptions struct {
	CAProvider  string
	UseHSM      bool
	HSMProvider string
	HSMKeyID    string

	// RequireTimestamp defaults to true when nil; timestamping must be
	// explicitly disabled.
	RequireTimestamp *bool

	TemplateID   *uuid.UUID
	TemplateData map[string]any

	Metadata map[string]any
	Purpose  string
	BatchID  *uuid.UUID
}

// timestampRequired reports the effective timestamp requirement.
func (o SignOptions) timestampRequired() bool {
	return o.RequireTimestamp == nil || *o.RequireTimestamp
}

// SignRequest carries the document and identity for one signing call.
type SignRequest struct {
	TargetType models.TargetType
	TargetID   string
	SignerID   string
	Document   map[string]any
	Options    SignOptions
}

// SignResult is the outcome of a successful signing call.
type SignResult struct {
	SignatureID uuid.UUID
	DataHash    string
	Timestamped bool
	Signing     models.SigningInfo
}

// Orchestrator drives the signing pipeline. Each call runs the linear state
// sequence hash -> certificate -> signature -> timestamp -> persist; HSM and
// TSA failures degrade gracefully, everything else aborts the call.
type Orchestrator struct {
	signatures store.SignatureStore
	signers    store.SignerStore
	registry   *ca.Registry
	templates  *template.Engine
	gateway    *hsm.Gateway
	tsaClient  tsa.Client
	local      *LocalSigner
	metrics    *telemetry.Metrics
}

// OrchestratorConfig carries the orchestrator's collaborators.
type OrchestratorConfig struct {
	Signatures store.SignatureStore
	Signers    store.SignerStore
	Registry   *ca.Registry
	Templates  *template.Engine
	Gateway    *hsm.Gateway
	TSA        tsa.Client
	Local      *LocalSigner
}

// NewOrchestrator creates the signing orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		signatures: cfg.Signatures,
		signers:    cfg.Signers,
		registry:   cfg.Registry,
		templates:  cfg.Templates,
		gateway:    cfg.Gateway,
		tsaClient:  cfg.TSA,
		local:      cfg.Local,
		metrics:    telemetry.GetMetrics(),
	}
}

// Sign runs the full pipeline for one document.
//
// Fatal failures: unknown signer, certificate issuance failure, template
// validation failure. Degraded: HSM unavailable or erroring (local fallback,
// recorded in provenance), TSA unavailable or erroring (timestamp status
// "failed", signature still stands).
func (o *Orchestrator) Sign(ctx context.Context, req SignRequest) (*SignResult, error) {
	started := time.Now()

	signer, err := o.signers.Get(ctx, req.SignerID)
	if err != nil {
		o.metrics.SignFailuresTotal.Add(ctx, 1)
		return nil, fmt.Errorf("failed to resolve signer %q: %w", req.SignerID, err)
	}

	// Resolve template and compute the data hash. With a template in play the
	// hashed object wraps the resolved payload so the structural contract is
	// covered by the digest.
	var resolved *template.Resolved
	hashMaterial := any(req.Document)
	if req.Options.TemplateID != nil {
		resolved, err = o.templates.Resolve(ctx, *req.Options.TemplateID, req.Options.TemplateData)
		if err != nil {
			o.metrics.SignFailuresTotal.Add(ctx, 1)
			return nil, err
		}
		hashMaterial = map[string]any{
			"template": resolved.Payload,
			"data":     req.Document,
		}
	}

	dataHash, err := canonical.Hash(hashMaterial)
	if err != nil {
		o.metrics.SignFailuresTotal.Add(ctx, 1)
		return nil, fmt.Errorf("failed to hash payload: %w", err)
	}

	// Template's CA provider takes precedence over the caller's
	caProvider := req.Options.CAProvider
	if resolved != nil && resolved.CAProvider != "" {
		caProvider = resolved.CAProvider
	}

	cert, err := o.registry.IssueCertificate(ctx, signer, caProvider)
	if err != nil {
		o.metrics.SignFailuresTotal.Add(ctx, 1)
		return nil, fmt.Errorf("certificate issuance failed: %w", err)
	}

	signatureValue, signingInfo, err := o.obtainSignature(ctx, dataHash, cert, req.Options)
	if err != nil {
		o.metrics.SignFailuresTotal.Add(ctx, 1)
		return nil, err
	}

	timestamp := o.obtainTimestamp(ctx, dataHash, req.Options)

	rec := &models.SignatureRecord{
		ID:             newRecordID(),
		TargetType:     req.TargetType,
		TargetID:       req.TargetID,
		SignerID:       signer.ID,
		SignerName:     signer.Name,
		SignerRole:     signer.Role,
		DataHash:       dataHash,
		SignatureValue: signatureValue,
		Certificate:    *cert,
		Timestamp:      timestamp,
		Signing:        signingInfo,
		BatchID:        req.Options.BatchID,
		Purpose:        req.Options.Purpose,
		Metadata:       req.Options.Metadata,
		Status:         models.SignatureStatusActive,
		CreatedAt:      time.Now(),
	}

	if resolved != nil {
		rec.Template = &models.TemplateRef{
			TemplateID: resolved.TemplateID,
			Name:       resolved.Name,
			Version:    resolved.Version,
			Payload:    resolved.Payload,
		}
		if rec.Purpose == "" {
			rec.Purpose = resolved.Purpose
		}
		if rec.Metadata == nil {
			rec.Metadata = resolved.Metadata
		}
	}

	if err := o.signatures.Create(ctx, rec); err != nil {
		o.metrics.SignFailuresTotal.Add(ctx, 1)
		return nil, fmt.Errorf("failed to persist signature: %w", err)
	}

	o.metrics.SignaturesCreatedTotal.Add(ctx, 1)
	o.metrics.SignDuration.Record(ctx, float64(time.Since(started).Milliseconds()), metric.WithAttributes())

	log.Info().
		Stringer("signature_id", rec.ID).
		Str("target_type", string(rec.TargetType)).
		Str("target_id", rec.TargetID).
		Str("method", signingInfo.Method).
		Bool("used_hsm", signingInfo.UsedHSM).
		Bool("fallback", signingInfo.Fallback).
		Str("timestamp_status", timestamp.Status).
		Msg("document signed")

	return &SignResult{
		SignatureID: rec.ID,
		DataHash:    dataHash,
		Timestamped: timestamp.Status == models.TimestampStatusVerified,
		Signing:     signingInfo,
	}, nil
}

// obtainSignature attempts HSM signing when requested and falls back to the
// local signer otherwise. HSM failure never aborts the call; the original
// error is preserved in the provenance.
func (o *Orchestrator) obtainSignature(ctx context.Context, dataHash string, cert *models.CertificateInfo, opts SignOptions) (string, models.SigningInfo, error) {
	var hsmErr string

	if opts.UseHSM {
		o.metrics.HSMSignAttemptsTotal.Add(ctx, 1)

		res := o.gateway.Sign(ctx, dataHash, hsm.SignOptions{
			ProviderID: opts.HSMProvider,
			KeyID:      opts.HSMKeyID,
			Algorithm:  cert.Algorithm,
		})
		if res.UsedHSM {
			if res.PublicKeyPEM != "" {
				cert.PublicKeyPEM = res.PublicKeyPEM
			}
			return res.SignatureValue, models.SigningInfo{
				UsedHSM:    true,
				Method:     models.SigningMethodHSM,
				ProviderID: res.ProviderID,
				KeyID:      res.KeyID,
				Algorithm:  res.Algorithm,
			}, nil
		}

		o.metrics.HSMSignFailuresTotal.Add(ctx, 1)
		hsmErr = res.Err
	}

	sig, err := o.local.Sign(dataHash, cert.Algorithm)
	if err != nil {
		return "", models.SigningInfo{}, fmt.Errorf("local signing failed: %w", err)
	}

	if sig.PublicKeyPEM != "" {
		cert.PublicKeyPEM = sig.PublicKeyPEM
	}

	info := models.SigningInfo{
		UsedHSM:   false,
		Method:    sig.Method,
		KeyID:     sig.KeyID,
		Algorithm: sig.Algorithm,
		Fallback:  opts.UseHSM,
		LastError: hsmErr,
	}
	if info.Fallback {
		o.metrics.SignFallbacksTotal.Add(ctx, 1)
	}

	return sig.Value, info, nil
}

// obtainTimestamp requests a TSA token unless timestamping was explicitly
// disabled. TSA failure degrades to status "failed" without aborting.
func (o *Orchestrator) obtainTimestamp(ctx context.Context, dataHash string, opts SignOptions) models.TimestampInfo {
	if !opts.timestampRequired() {
		return models.TimestampInfo{Status: models.TimestampStatusNotRequired}
	}

	token, err := o.tsaClient.Timestamp(ctx, dataHash)
	if err != nil {
		o.metrics.TimestampFailuresTotal.Add(ctx, 1)
		log.Warn().Err(err).Msg("TSA request failed, signature recorded without timestamp")
		return models.TimestampInfo{Status: models.TimestampStatusFailed}
	}

	o.metrics.TimestampsIssuedTotal.Add(ctx, 1)
	signedAt := token.SignedAt
	tokenSum := sha256.Sum256([]byte(token.Value))

	return models.TimestampInfo{
		Token:         token.Value,
		TSAURL:        token.URL,
		TimestampedAt: &signedAt,
		TokenHash:     hex.EncodeToString(tokenSum[:]),
		Status:        models.TimestampStatusVerified,
	}
}

// Revoke terminally invalidates a signature. A second revocation fails
// cleanly with store.ErrAlreadyRevoked.
func (o *Orchestrator) Revoke(ctx context.Context, id uuid.UUID, reason, revokedBy string) error {
	if err := o.signatures.Revoke(ctx, id, reason, revokedBy, time.Now()); err != nil {
		return err
	}

	o.metrics.RevocationsTotal.Add(ctx, 1)
	log.Info().
		Stringer("signature_id", id).
		Str("reason", reason).
		Str("revoked_by", revokedBy).
		Msg("signature revoked")
	return nil
}

func newRecordID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the random source does; fall back to v4
		return uuid.New()
	}
	return id
}
