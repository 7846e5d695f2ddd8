package hsm

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
)

func testDigest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestGateway_Disabled(t *testing.T) {
	g := NewGateway(false, "mock")
	g.RegisterProvider(NewMockProvider("mock"))

	res := g.Sign(context.Background(), testDigest("doc"), SignOptions{})
	require.False(t, res.UsedHSM)
	require.NotEmpty(t, res.Err)
	require.Empty(t, res.SignatureValue)
}

func TestGateway_MockSign(t *testing.T) {
	g := NewGateway(true, "mock")
	g.RegisterProvider(NewMockProvider("mock"))

	digest := testDigest("doc")
	res := g.Sign(context.Background(), digest, SignOptions{})
	require.True(t, res.UsedHSM)
	require.Empty(t, res.Err)
	require.Equal(t, "mock", res.ProviderID)
	require.True(t, IsMockSignature(res.SignatureValue))

	// Deterministic: same key and digest produce the same pseudo-signature
	again := g.Sign(context.Background(), digest, SignOptions{})
	require.Equal(t, res.SignatureValue, again.SignatureValue)
	require.Equal(t, res.SignatureValue, MockSignature(res.KeyID, digest))
}

func TestGateway_UnknownProvider(t *testing.T) {
	g := NewGateway(true, "mock")
	g.RegisterProvider(NewMockProvider("mock"))

	res := g.Sign(context.Background(), testDigest("doc"), SignOptions{ProviderID: "cloudhsm-9"})
	require.False(t, res.UsedHSM)
	require.Contains(t, res.Err, "cloudhsm-9")
}

type failingProvider struct{ id string }

func (p *failingProvider) ID() string { return p.id }

func (p *failingProvider) Sign(ctx context.Context, req SignRequest) (*SignResult, error) {
	return nil, errors.New("tamper sensor tripped")
}

func (p *failingProvider) TestConnection(ctx context.Context) error {
	return errors.New("unreachable")
}

func TestGateway_ProviderFailureDoesNotPropagate(t *testing.T) {
	g := NewGateway(true, "flaky")
	g.RegisterProvider(&failingProvider{id: "flaky"})

	res := g.Sign(context.Background(), testDigest("doc"), SignOptions{})
	require.False(t, res.UsedHSM)
	require.Contains(t, res.Err, "tamper sensor tripped")
	require.Equal(t, "flaky", res.ProviderID)
}

func TestGateway_CancelledContext(t *testing.T) {
	g := NewGateway(true, "mock")
	g.RegisterProvider(NewMockProvider("mock"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := g.Sign(ctx, testDigest("doc"), SignOptions{})
	require.False(t, res.UsedHSM)
	require.NotEmpty(t, res.Err)
}

func TestGateway_TestConnection(t *testing.T) {
	g := NewGateway(true, "mock")
	g.RegisterProvider(NewMockProvider("mock"))
	g.RegisterProvider(&failingProvider{id: "flaky"})

	require.NoError(t, g.TestConnection(context.Background(), "mock"))
	require.Error(t, g.TestConnection(context.Background(), "flaky"))
	require.Error(t, g.TestConnection(context.Background(), "absent"))
}

func TestLocalKeyProvider_SignVerify(t *testing.T) {
	p, err := NewEphemeralKeyProvider("local")
	require.NoError(t, err)

	digest := testDigest("doc")
	res, err := p.Sign(context.Background(), SignRequest{HashHex: digest})
	require.NoError(t, err)
	require.Equal(t, "ECDSA-SHA256", res.Algorithm)

	// Signature verifies against the exported public key
	pubPEM, err := p.PublicKeyPEM()
	require.NoError(t, err)

	block, _ := pem.Decode([]byte(pubPEM))
	require.NotNil(t, block)
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(t, err)

	sig, err := base58.Decode(res.SignatureValue)
	require.NoError(t, err)

	digestBytes, err := hex.DecodeString(digest)
	require.NoError(t, err)
	require.True(t, ecdsa.VerifyASN1(pub.(*ecdsa.PublicKey), digestBytes, sig))

	require.NoError(t, p.TestConnection(context.Background()))
}
