package models

import (
	"time"

	"github.com/google/uuid"
)

// TargetType identifies the kind of business document a signature covers.
type TargetType string

const (
	TargetTypeDrug         TargetType = "drug"
	TargetTypeSupplyChain  TargetType = "supply_chain"
	TargetTypeQualityTest  TargetType = "quality_test"
	TargetTypeRecall       TargetType = "recall"
	TargetTypeDistribution TargetType = "distribution"
	TargetTypeOther        TargetType = "other"
)

// SignatureStatus is the lifecycle status of a signature record.
const (
	SignatureStatusActive  = "active"
	SignatureStatusRevoked = "revoked"
)

// CertificateStatus is the status of a certificate snapshot.
const (
	CertStatusValid   = "valid"
	CertStatusExpired = "expired"
	CertStatusRevoked = "revoked"
	CertStatusUnknown = "unknown"
)

// TimestampStatus is the status of a TSA countersignature.
const (
	TimestampStatusPending     = "pending"
	TimestampStatusVerified    = "verified"
	TimestampStatusFailed      = "failed"
	TimestampStatusNotRequired = "not_required"
)

// SigningMethod records which signing path produced the signature value.
const (
	SigningMethodHSM   = "hsm"
	SigningMethodLocal = "local"
	SigningMethodMock  = "mock"
)

// CertificateInfo is an immutable snapshot of the certificate used for one
// signature. A later CA state change must not alter past signatures, so all
// fields are copied at signing time rather than referenced.
type CertificateInfo struct {
	SerialNumber string
	ProviderID   string
	ProviderName string
	Subject      string
	Issuer       string
	ValidFrom    time.Time
	ValidTo      time.Time
	PublicKeyPEM string
	Algorithm    string
	Status       string // CertStatus*
	VerifiedAt   time.Time
}

// TimestampInfo is the snapshot of a TSA countersignature over the data hash.
type TimestampInfo struct {
	Token         string
	TSAURL        string
	TimestampedAt *time.Time
	TokenHash     string
	Status        string // TimestampStatus*
}

// SigningInfo records the provenance of the signature value, including
// whether the HSM path was used and whether local fallback occurred.
type SigningInfo struct {
	UsedHSM    bool
	Method     string // SigningMethod*
	ProviderID string
	KeyID      string
	Algorithm  string
	Fallback   bool
	LastError  string // original HSM error when Fallback is true
}

// TemplateRef links a signature to the template version it was produced with,
// including the fully resolved payload that went into the data hash.
type TemplateRef struct {
	TemplateID uuid.UUID
	Name       string
	Version    int
	Payload    map[string]any
}

// SignatureRecord is the persisted outcome of one signing operation.
// DataHash and SignatureValue are write-once at creation; once Status leaves
// "active" the record is immutable except for audit metadata.
type SignatureRecord struct {
	ID         uuid.UUID // UUIDv7
	TargetType TargetType
	TargetID   string

	// Signer identity snapshot at time of signing
	SignerID   string
	SignerName string
	SignerRole string

	DataHash       string // hex SHA-256 of the canonicalized signed material
	SignatureValue string

	Certificate CertificateInfo
	Timestamp   TimestampInfo
	Signing     SigningInfo

	Template *TemplateRef
	BatchID  *uuid.UUID

	Purpose  string
	Metadata map[string]any

	Status        string // SignatureStatus*
	RevokedReason string
	RevokedBy     string
	RevokedAt     *time.Time

	CreatedAt time.Time
}

// IsActive returns true if the signature has not been revoked.
func (r *SignatureRecord) IsActive() bool {
	return r.Status == SignatureStatusActive
}

// CertificateExpired returns true if the certificate snapshot's validity
// window has ended at the given time.
func (r *SignatureRecord) CertificateExpired(now time.Time) bool {
	return now.After(r.Certificate.ValidTo)
}
