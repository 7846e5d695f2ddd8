// Package hsm abstracts pluggable signing backends behind a provider
// interface, with mock, local-key and cloud KMS variants. The gateway in
// front of them converts provider failures into structured results so the
// signing pipeline can fall back to local signing without branching on
// errors.
package hsm

import "context"

// SignRequest asks a provider to sign a precomputed digest.
type SignRequest struct {
	// HashHex is the hex-encoded SHA-256 digest to sign.
	HashHex string

	// KeyID selects the key within the provider. Empty means the provider's
	// default key.
	KeyID string

	// Algorithm is the requested signing algorithm, e.g. "ECDSA-SHA256".
	Algorithm string
}

// SignResult is a provider's successful signing output.
type SignResult struct {
	SignatureValue string
	KeyID          string
	Algorithm      string
	Metadata       map[string]string
}

// Provider is the capability set every HSM backend implements.
// Implementations include MockProvider (deterministic pseudo-signatures),
// LocalKeyProvider (process-held ECDSA key) and KMSProvider (AWS KMS).
type Provider interface {
	// ID returns the provider's configured identifier.
	ID() string

	// Sign signs the digest in req. Implementations must respect ctx
	// cancellation; a timeout is treated by callers like any other failure.
	Sign(ctx context.Context, req SignRequest) (*SignResult, error)

	// TestConnection round-trips a trivial operation to validate
	// reachability and credentials.
	TestConnection(ctx context.Context) error
}
