package tsa

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

const mockTokenPrefix = "TST:"

// MockClient issues deterministic pseudo-tokens for development and tests.
// Tokens are derived from the hash alone so Verify can recompute them later.
type MockClient struct {
	url string

	// FailTimestamp makes Timestamp return an error, for exercising the
	// degraded path.
	FailTimestamp bool

	// FailVerify makes Verify report the token as untrusted.
	FailVerify bool
}

// NewMockClient creates a mock TSA client.
func NewMockClient() *MockClient {
	return &MockClient{url: "mock://tsa"}
}

// Timestamp derives a pseudo-token over the hash.
func (c *MockClient) Timestamp(ctx context.Context, hashHex string) (*Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.FailTimestamp {
		return nil, fmt.Errorf("tsa unavailable")
	}

	return &Token{
		Value:        mockToken(hashHex),
		URL:          c.url,
		SignedAt:     time.Now(),
		SerialNumber: uuid.New().String(),
	}, nil
}

// Verify recomputes the pseudo-token and compares it with the stored value.
func (c *MockClient) Verify(ctx context.Context, token *Token, hashHex string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.FailVerify {
		return fmt.Errorf("tsa verification unavailable")
	}
	if token == nil || token.Value != mockToken(hashHex) {
		return ErrTokenMismatch
	}
	return nil
}

func mockToken(hashHex string) string {
	sum := sha256.Sum256([]byte("mock-tsa:" + hashHex))
	return mockTokenPrefix + base58.Encode(sum[:])
}
