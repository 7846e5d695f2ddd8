package hsm

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// mockSignaturePrefix marks pseudo-signatures so they can never be mistaken
// for real cryptographic material.
const mockSignaturePrefix = "HSM-MOCK:"

// MockProvider always succeeds and produces a deterministic pseudo-signature
// derived from the key id and digest. Intended for development and tests.
type MockProvider struct {
	id           string
	defaultKeyID string
}

// NewMockProvider creates a mock HSM provider.
func NewMockProvider(id string) *MockProvider {
	if id == "" {
		id = "mock"
	}
	return &MockProvider{id: id, defaultKeyID: "mock-key-1"}
}

// ID returns the provider identifier.
func (p *MockProvider) ID() string { return p.id }

// Sign derives a deterministic pseudo-signature over the digest.
func (p *MockProvider) Sign(ctx context.Context, req SignRequest) (*SignResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.HashHex == "" {
		return nil, fmt.Errorf("empty digest")
	}

	keyID := req.KeyID
	if keyID == "" {
		keyID = p.defaultKeyID
	}

	algorithm := req.Algorithm
	if algorithm == "" {
		algorithm = "ECDSA-SHA256"
	}

	return &SignResult{
		SignatureValue: MockSignature(keyID, req.HashHex),
		KeyID:          keyID,
		Algorithm:      algorithm,
		Metadata:       map[string]string{"provider": p.id},
	}, nil
}

// TestConnection always succeeds for the mock provider.
func (p *MockProvider) TestConnection(ctx context.Context) error {
	return ctx.Err()
}

// MockSignature derives the pseudo-signature for a key id and digest. It is
// exported so verification can recompute it without re-entering the gateway.
func MockSignature(keyID, hashHex string) string {
	sum := sha256.Sum256([]byte(keyID + ":" + hashHex))
	return mockSignaturePrefix + base58.Encode(sum[:])
}

// IsMockSignature reports whether a signature value was produced by the mock
// provider.
func IsMockSignature(sig string) bool {
	return len(sig) > len(mockSignaturePrefix) && sig[:len(mockSignaturePrefix)] == mockSignaturePrefix
}
