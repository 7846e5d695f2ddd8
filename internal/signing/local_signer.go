package signing

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/medichain/docsign/internal/hsm"
	"github.com/medichain/docsign/internal/models"
)

// localMockPrefix marks pseudo-signatures from the keyless local path so they
// can never be mistaken for real cryptographic material.
const localMockPrefix = "MOCK:"

// ErrNoSigningKey is returned when no local key is configured and mock
// signing has not been explicitly allowed. Whether a deployment runs with
// real keys or the mock path is a configuration decision, not an implicit
// fallback.
var ErrNoSigningKey = errors.New("no local signing key configured and mock signing is disabled")

// LocalSignature is the outcome of one local signing call.
type LocalSignature struct {
	Value        string
	Method       string // models.SigningMethodLocal or models.SigningMethodMock
	KeyID        string
	Algorithm    string
	PublicKeyPEM string
}

// LocalSigner is the fallback signing path used when the HSM gateway is
// disabled or reports failure. With a configured ECDSA key it produces real
// signatures; without one it derives a well-marked deterministic
// pseudo-signature, provided mock signing is allowed.
type LocalSigner struct {
	key       *ecdsa.PrivateKey
	allowMock bool
}

// NewLocalSigner creates a local signer. key may be nil; allowMock decides
// whether the keyless path is permitted.
func NewLocalSigner(key *ecdsa.PrivateKey, allowMock bool) *LocalSigner {
	return &LocalSigner{key: key, allowMock: allowMock}
}

// NewLocalSignerFromPEM loads a PEM-encoded ECDSA private key from disk.
func NewLocalSignerFromPEM(keyPath string, allowMock bool) (*LocalSigner, error) {
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

	return &LocalSigner{key: key, allowMock: allowMock}, nil
}

// NewEphemeralLocalSigner generates a fresh P-256 key, for tests and
// development setups that want real signatures without key management.
func NewEphemeralLocalSigner() (*LocalSigner, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &LocalSigner{key: key, allowMock: false}, nil
}

// Sign produces a signature over the hex digest. It never fails for ordinary
// use: a configured key signs for real, otherwise the deterministic mock path
// produces a marked placeholder. Only a misconfiguration (no key, mock
// disallowed) or a malformed digest errors.
func (s *LocalSigner) Sign(hashHex, algorithm string) (*LocalSignature, error) {
	if algorithm == "" {
		algorithm = "ECDSA-SHA256"
	}

	if s.key != nil {
		digest, err := hex.DecodeString(hashHex)
		if err != nil {
			return nil, fmt.Errorf("invalid digest: %w", err)
		}

		sig, err := ecdsa.SignASN1(rand.Reader, s.key, digest)
		if err != nil {
			return nil, fmt.Errorf("local signing failed: %w", err)
		}

		pubPEM, err := s.publicKeyPEM()
		if err != nil {
			return nil, err
		}

		return &LocalSignature{
			Value:        base58.Encode(sig),
			Method:       models.SigningMethodLocal,
			KeyID:        "local-software-key",
			Algorithm:    "ECDSA-SHA256",
			PublicKeyPEM: pubPEM,
		}, nil
	}

	if !s.allowMock {
		return nil, ErrNoSigningKey
	}

	return &LocalSignature{
		Value:     mockLocalSignature(hashHex),
		Method:    models.SigningMethodMock,
		KeyID:     "mock-local-key",
		Algorithm: algorithm,
	}, nil
}

func (s *LocalSigner) publicKeyPEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(&s.key.PublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// mockLocalSignature derives the keyless pseudo-signature for a digest.
// Deterministic so verification can recompute it.
func mockLocalSignature(hashHex string) string {
	sum := sha256.Sum256([]byte("local-mock:" + hashHex))
	return localMockPrefix + base58.Encode(sum[:])
}

// VerifySignatureValue checks a stored signature value against the digest it
// covers. Mock signatures (local or HSM) are recomputed deterministically;
// real signatures are verified with ECDSA against the stored public key.
func VerifySignatureValue(hashHex, sigValue, publicKeyPEM, keyID string) bool {
	switch {
	case strings.HasPrefix(sigValue, localMockPrefix):
		return sigValue == mockLocalSignature(hashHex)

	case hsm.IsMockSignature(sigValue):
		return sigValue == hsm.MockSignature(keyID, hashHex)

	default:
		return verifyECDSA(hashHex, sigValue, publicKeyPEM)
	}
}

func verifyECDSA(hashHex, sigValue, publicKeyPEM string) bool {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil || block.Type != "PUBLIC KEY" {
		return false
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return false
	}

	ecdsaPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return false
	}

	digest, err := hex.DecodeString(hashHex)
	if err != nil {
		return false
	}

	sig, err := base58.Decode(sigValue)
	if err != nil {
		return false
	}

	return ecdsa.VerifyASN1(ecdsaPub, digest, sig)
}
