package hsm

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// SignOptions selects the provider and key for one gateway sign call.
type SignOptions struct {
	ProviderID string // empty = gateway default
	KeyID      string
	Algorithm  string
}

// Result is the normalized outcome of a gateway sign call. Provider failure
// is reported in Err with UsedHSM false, never as a Go error: HSM failure
// must trigger local fallback, not crash the signing pipeline.
type Result struct {
	UsedHSM        bool
	SignatureValue string
	ProviderID     string
	KeyID          string
	Algorithm      string
	PublicKeyPEM   string
	Err            string
}

// PublicKeyProvider is implemented by providers whose public key material is
// available for stamping into certificate snapshots.
type PublicKeyProvider interface {
	PublicKeyPEM() (string, error)
}

// Gateway fronts zero or more HSM providers behind a global enable switch and
// a default provider selection.
type Gateway struct {
	mu        sync.RWMutex
	enabled   bool
	defaultID string
	providers map[string]Provider
}

// NewGateway creates a gateway. When enabled is false every Sign call reports
// "not available" so callers fall back without branching on errors.
func NewGateway(enabled bool, defaultProviderID string) *Gateway {
	return &Gateway{
		enabled:   enabled,
		defaultID: defaultProviderID,
		providers: make(map[string]Provider),
	}
}

// RegisterProvider adds or replaces a provider.
func (g *Gateway) RegisterProvider(p Provider) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.providers[p.ID()] = p
}

// IsEnabled reports the global HSM switch.
func (g *Gateway) IsEnabled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.enabled
}

// Sign resolves the requested (or default) provider and delegates to it.
// Any failure, including an unknown provider or a context timeout, comes
// back as a Result with UsedHSM false and the error text preserved for
// signing provenance.
func (g *Gateway) Sign(ctx context.Context, hashHex string, opts SignOptions) *Result {
	if !g.IsEnabled() {
		return &Result{UsedHSM: false, Err: "hsm is not enabled"}
	}

	provider, err := g.resolve(opts.ProviderID)
	if err != nil {
		return &Result{UsedHSM: false, Err: err.Error()}
	}

	res, err := provider.Sign(ctx, SignRequest{
		HashHex:   hashHex,
		KeyID:     opts.KeyID,
		Algorithm: opts.Algorithm,
	})
	if err != nil {
		log.Warn().
			Err(err).
			Str("provider", provider.ID()).
			Msg("HSM sign failed, caller will fall back to local signing")
		return &Result{UsedHSM: false, ProviderID: provider.ID(), Err: err.Error()}
	}

	result := &Result{
		UsedHSM:        true,
		SignatureValue: res.SignatureValue,
		ProviderID:     provider.ID(),
		KeyID:          res.KeyID,
		Algorithm:      res.Algorithm,
	}

	if pk, ok := provider.(PublicKeyProvider); ok {
		if pubPEM, err := pk.PublicKeyPEM(); err == nil {
			result.PublicKeyPEM = pubPEM
		}
	}

	return result
}

// TestConnection validates reachability of the given provider (or the
// default when providerID is empty). Used by operator health checks.
func (g *Gateway) TestConnection(ctx context.Context, providerID string) error {
	provider, err := g.resolve(providerID)
	if err != nil {
		return err
	}
	return provider.TestConnection(ctx)
}

func (g *Gateway) resolve(providerID string) (Provider, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	id := providerID
	if id == "" {
		id = g.defaultID
	}

	provider, ok := g.providers[id]
	if !ok {
		return nil, fmt.Errorf("unknown HSM provider %q", id)
	}
	return provider, nil
}
