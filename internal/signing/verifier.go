package signing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/medichain/docsign/internal/canonical"
	"github.com/medichain/docsign/internal/models"
	"github.com/medichain/docsign/internal/store"
	"github.com/medichain/docsign/internal/telemetry"
	"github.com/medichain/docsign/internal/tsa"
)

// ErrMissingVerificationData is returned when no current payload is supplied.
// A verdict cannot be produced without the data the signature is supposed to
// cover.
var ErrMissingVerificationData = errors.New("verification data is required")

// VerifyResult is the verdict of one verification call. "The data doesn't
// verify" is an expected first-class outcome, so every negative case comes
// back as Valid false with a message, never as an error.
type VerifyResult struct {
	Valid       bool
	Verified    bool
	Message     string
	Timestamped bool
	Certificate *models.CertificateInfo
}

// Verifier recomputes the hash from caller-supplied current data and checks
// signature, certificate and timestamp validity.
type Verifier struct {
	signatures store.SignatureStore
	tsaClient  tsa.Client
	metrics    *telemetry.Metrics
}

// NewVerifier creates a verification engine.
func NewVerifier(signatures store.SignatureStore, tsaClient tsa.Client) *Verifier {
	return &Verifier{
		signatures: signatures,
		tsaClient:  tsaClient,
		metrics:    telemetry.GetMetrics(),
	}
}

// Verify checks that currentData still matches what was signed and that the
// signature, certificate and timestamp still stand. The checks run cheapest
// first and fail closed: once a gate trips, no further checks run.
func (v *Verifier) Verify(ctx context.Context, signatureID uuid.UUID, currentData map[string]any) (*VerifyResult, error) {
	v.metrics.VerificationsTotal.Add(ctx, 1)

	rec, err := v.signatures.Get(ctx, signatureID)
	if err != nil {
		if errors.Is(err, store.ErrSignatureNotFound) {
			return v.verdict(ctx, &VerifyResult{Valid: false, Message: "signature not found"}), nil
		}
		return nil, err
	}

	cert := rec.Certificate

	if !rec.IsActive() {
		msg := "signature has been revoked"
		if rec.RevokedReason != "" {
			msg = fmt.Sprintf("signature has been revoked: %s", rec.RevokedReason)
		}
		return v.verdict(ctx, &VerifyResult{Valid: false, Message: msg, Certificate: &cert}), nil
	}

	if cert.Status != models.CertStatusValid {
		return v.verdict(ctx, &VerifyResult{
			Valid:       false,
			Message:     fmt.Sprintf("certificate status is %s", cert.Status),
			Certificate: &cert,
		}), nil
	}

	if rec.CertificateExpired(time.Now()) {
		return v.verdict(ctx, &VerifyResult{
			Valid:       false,
			Message:     "certificate has expired",
			Certificate: &cert,
		}), nil
	}

	if currentData == nil {
		return nil, ErrMissingVerificationData
	}

	// Recompute the digest over the current payload, wrapped with the stored
	// template payload when the record used one. The hash comparison is the
	// cheapest and most decisive check, so it runs before any cryptography.
	hashMaterial := any(currentData)
	if rec.Template != nil {
		hashMaterial = map[string]any{
			"template": rec.Template.Payload,
			"data":     currentData,
		}
	}

	currentHash, err := canonical.Hash(hashMaterial)
	if err != nil {
		return nil, fmt.Errorf("failed to hash current data: %w", err)
	}

	if currentHash != rec.DataHash {
		return v.verdict(ctx, &VerifyResult{
			Valid:       false,
			Message:     "data changed: hash does not match signed payload",
			Certificate: &cert,
		}), nil
	}

	if !VerifySignatureValue(rec.DataHash, rec.SignatureValue, cert.PublicKeyPEM, rec.Signing.KeyID) {
		return v.verdict(ctx, &VerifyResult{
			Valid:       false,
			Message:     "signature value does not verify against certificate key",
			Certificate: &cert,
		}), nil
	}

	result := &VerifyResult{
		Valid:       true,
		Verified:    true,
		Message:     "signature valid",
		Certificate: &cert,
	}

	// A failed timestamp re-validation downgrades the result, it does not
	// invalidate the signature.
	if rec.Timestamp.Status == models.TimestampStatusVerified {
		token := &tsa.Token{
			Value: rec.Timestamp.Token,
			URL:   rec.Timestamp.TSAURL,
		}
		if rec.Timestamp.TimestampedAt != nil {
			token.SignedAt = *rec.Timestamp.TimestampedAt
		}

		if err := v.tsaClient.Verify(ctx, token, rec.DataHash); err != nil {
			log.Warn().Err(err).Stringer("signature_id", signatureID).Msg("timestamp re-validation failed")
			result.Message = "valid signature, unverifiable timestamp"
		} else {
			result.Timestamped = true
		}
	}

	return result, nil
}

func (v *Verifier) verdict(ctx context.Context, res *VerifyResult) *VerifyResult {
	if !res.Valid {
		v.metrics.VerificationFailuresTotal.Add(ctx, 1)
	}
	return res
}
