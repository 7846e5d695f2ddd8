package hsm

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/mr-tron/base58"
)

// LocalKeyProvider signs with an ECDSA private key held by the process. It
// fills the HSM provider seam for deployments that keep a software key
// instead of hardware, and for integration environments.
type LocalKeyProvider struct {
	id  string
	key *ecdsa.PrivateKey
}

// NewLocalKeyProvider creates a provider from a PEM-encoded ECDSA private key
// file.
func NewLocalKeyProvider(id, keyPath string) (*LocalKeyProvider, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode key PEM")
	}

	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse EC private key: %w", err)
	}

	return &LocalKeyProvider{id: id, key: key}, nil
}

// NewEphemeralKeyProvider creates a provider with a freshly generated P-256
// key. Used by tests and development setups that need real signatures without
// key management.
func NewEphemeralKeyProvider(id string) (*LocalKeyProvider, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &LocalKeyProvider{id: id, key: key}, nil
}

// ID returns the provider identifier.
func (p *LocalKeyProvider) ID() string { return p.id }

// Sign produces an ECDSA signature over the digest.
func (p *LocalKeyProvider) Sign(ctx context.Context, req SignRequest) (*SignResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	digest, err := hex.DecodeString(req.HashHex)
	if err != nil {
		return nil, fmt.Errorf("invalid digest: %w", err)
	}

	sig, err := ecdsa.SignASN1(rand.Reader, p.key, digest)
	if err != nil {
		return nil, fmt.Errorf("signing failed: %w", err)
	}

	keyID := req.KeyID
	if keyID == "" {
		keyID = p.id + "-key"
	}

	return &SignResult{
		SignatureValue: base58.Encode(sig),
		KeyID:          keyID,
		Algorithm:      "ECDSA-SHA256",
	}, nil
}

// TestConnection verifies the key is usable by signing a throwaway digest.
func (p *LocalKeyProvider) TestConnection(ctx context.Context) error {
	probe := make([]byte, 32)
	if _, err := ecdsa.SignASN1(rand.Reader, p.key, probe); err != nil {
		return fmt.Errorf("key unusable: %w", err)
	}
	return ctx.Err()
}

// PublicKeyPEM returns the provider's public key in PKIX PEM form for
// stamping into certificate snapshots.
func (p *LocalKeyProvider) PublicKeyPEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(&p.key.PublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}
