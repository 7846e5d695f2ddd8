package hsm

import (
	"context"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/mr-tron/base58"
)

// KMSProvider delegates signing to AWS KMS. The private key never leaves the
// KMS HSM; only signing operations are performed against the digest.
type KMSProvider struct {
	id           string
	client       *kms.Client
	defaultKeyID string
	publicKeyPEM string
}

// NewKMSProvider creates a provider bound to an AWS KMS key. The keyID can be
// a key ID, key ARN, alias name, or alias ARN. The key's public half is
// fetched once at construction so certificate snapshots can carry it.
func NewKMSProvider(ctx context.Context, id string, awsConfig aws.Config, keyID string) (*KMSProvider, error) {
	client := kms.NewFromConfig(awsConfig)

	out, err := client.GetPublicKey(ctx, &kms.GetPublicKeyInput{
		KeyId: aws.String(keyID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get public key from KMS: %w", err)
	}

	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: out.PublicKey}))

	return &KMSProvider{
		id:           id,
		client:       client,
		defaultKeyID: keyID,
		publicKeyPEM: pubPEM,
	}, nil
}

// ID returns the provider identifier.
func (p *KMSProvider) ID() string { return p.id }

// Sign signs the digest using AWS KMS. KMS expects the digest to be hashed
// already, so the hex digest is decoded and sent as MessageTypeDigest.
func (p *KMSProvider) Sign(ctx context.Context, req SignRequest) (*SignResult, error) {
	digest, err := hex.DecodeString(req.HashHex)
	if err != nil {
		return nil, fmt.Errorf("invalid digest: %w", err)
	}

	keyID := req.KeyID
	if keyID == "" {
		keyID = p.defaultKeyID
	}

	out, err := p.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(keyID),
		Message:          digest,
		MessageType:      types.MessageTypeDigest,
		SigningAlgorithm: types.SigningAlgorithmSpecEcdsaSha256,
	})
	if err != nil {
		return nil, fmt.Errorf("KMS sign operation failed: %w", err)
	}

	return &SignResult{
		SignatureValue: base58.Encode(out.Signature),
		KeyID:          keyID,
		Algorithm:      "ECDSA-SHA256",
		Metadata:       map[string]string{"provider": p.id},
	}, nil
}

// TestConnection fetches the key's public key to validate reachability and
// credentials.
func (p *KMSProvider) TestConnection(ctx context.Context) error {
	_, err := p.client.GetPublicKey(ctx, &kms.GetPublicKeyInput{
		KeyId: aws.String(p.defaultKeyID),
	})
	if err != nil {
		return fmt.Errorf("failed to get public key from KMS: %w", err)
	}
	return nil
}

// PublicKeyPEM returns the KMS key's public half, fetched at construction.
func (p *KMSProvider) PublicKeyPEM() (string, error) {
	return p.publicKeyPEM, nil
}
