// Package ca implements the certificate-authority registry: a merged lookup
// table of built-in and runtime-registered CA provider configs, and the seam
// where certificate metadata is issued for a signer.
package ca

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/medichain/docsign/internal/models"
	"github.com/medichain/docsign/internal/store"
)

// DefaultProviderCode is used when a caller does not specify a CA provider.
const DefaultProviderCode = "VNCA"

var codePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_-]{1,31}$`)

// ErrInvalidCode is returned when a registration carries a malformed code.
var ErrInvalidCode = fmt.Errorf("provider code must be uppercase alphanumeric")

// Registry holds the CA provider lookup table. The table is populated at most
// once per process lifetime; the load is idempotent so concurrent first
// callers are harmless. Reads are lock-free against an atomic snapshot,
// writers replace the snapshot wholesale under a mutex.
type Registry struct {
	providers   store.CAProviderStore
	defaultCode string

	loadOnce sync.Once
	loadErr  error

	writeMu  sync.Mutex
	snapshot atomic.Pointer[map[string]*models.CAProviderConfig]
}

// NewRegistry creates a registry backed by the given provider store for
// custom registrations. defaultCode selects the fallback provider; empty
// means DefaultProviderCode.
func NewRegistry(providers store.CAProviderStore, defaultCode string) *Registry {
	if defaultCode == "" {
		defaultCode = DefaultProviderCode
	}
	return &Registry{
		providers:   providers,
		defaultCode: strings.ToUpper(defaultCode),
	}
}

// builtinProviders returns the provider configs seeded at first use.
func builtinProviders() []*models.CAProviderConfig {
	return []*models.CAProviderConfig{
		{
			Code:         "VNCA",
			Name:         "Vietnam National CA",
			EndpointURL:  "https://ca.gov.vn/api/v1",
			Algorithm:    "ECDSA-SHA256",
			KeySize:      256,
			ValidityDays: 365,
			SupportsHSM:  true,
			Description:  "National certificate authority",
			Active:       true,
			BuiltIn:      true,
		},
		{
			Code:         "VIETTEL-CA",
			Name:         "Viettel CA",
			EndpointURL:  "https://ca.viettel.vn/api",
			Algorithm:    "RSA-SHA256",
			KeySize:      2048,
			ValidityDays: 365,
			SupportsHSM:  true,
			Active:       true,
			BuiltIn:      true,
		},
		{
			Code:         "FPT-CA",
			Name:         "FPT CA",
			EndpointURL:  "https://ca.fpt.vn/api",
			Algorithm:    "RSA-SHA256",
			KeySize:      2048,
			ValidityDays: 730,
			SupportsHSM:  false,
			Active:       true,
			BuiltIn:      true,
		},
		{
			Code:         "SELF",
			Name:         "Self-Signed (development)",
			Algorithm:    "ECDSA-SHA256",
			KeySize:      256,
			ValidityDays: 90,
			SupportsHSM:  false,
			Description:  "Process-local certificates for development and testing",
			Active:       true,
			BuiltIn:      true,
		},
	}
}

// ensureLoaded populates the lookup table on first use. Safe for concurrent
// callers; repeating the load is harmless because the merged table is built
// from scratch and swapped in atomically.
func (r *Registry) ensureLoaded(ctx context.Context) error {
	r.loadOnce.Do(func() {
		table := make(map[string]*models.CAProviderConfig)
		for _, cfg := range builtinProviders() {
			table[cfg.Code] = cfg
		}

		if r.providers != nil {
			custom, err := r.providers.List(ctx)
			if err != nil {
				r.loadErr = fmt.Errorf("failed to load registered CA providers: %w", err)
				return
			}
			for _, cfg := range custom {
				table[strings.ToUpper(cfg.Code)] = cfg
			}
		}

		r.snapshot.Store(&table)
		log.Debug().Int("providers", len(table)).Msg("CA provider table loaded")
	})
	return r.loadErr
}

// List returns all known CA provider configs, built-in and registered,
// sorted by code.
func (r *Registry) List(ctx context.Context) ([]*models.CAProviderConfig, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	table := *r.snapshot.Load()
	result := make([]*models.CAProviderConfig, 0, len(table))
	for _, cfg := range table {
		cp := *cfg
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })

	return result, nil
}

// Get returns the provider config for the given code, or the default provider
// when the code is empty or unknown. Defaults are always present, so Get
// never fails after a successful load. Lookup is case-insensitive.
func (r *Registry) Get(ctx context.Context, code string) (*models.CAProviderConfig, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	table := *r.snapshot.Load()
	if code != "" {
		if cfg, ok := table[strings.ToUpper(code)]; ok {
			cp := *cfg
			return &cp, nil
		}
		log.Warn().Str("provider", code).Str("default", r.defaultCode).Msg("unknown CA provider, using default")
	}

	cfg := table[r.defaultCode]
	cp := *cfg
	return &cp, nil
}

// Register validates and persists a custom provider config, then merges it
// into the in-memory table so subsequent Get calls see it immediately.
// Returns store.ErrDuplicateCode if the code is already taken.
func (r *Registry) Register(ctx context.Context, cfg *models.CAProviderConfig) error {
	if err := r.ensureLoaded(ctx); err != nil {
		return err
	}

	code := strings.ToUpper(strings.TrimSpace(cfg.Code))
	if !codePattern.MatchString(code) {
		return fmt.Errorf("%w: %q", ErrInvalidCode, cfg.Code)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current := *r.snapshot.Load()
	if _, exists := current[code]; exists {
		return fmt.Errorf("%w: %s", store.ErrDuplicateCode, code)
	}

	cp := *cfg
	cp.Code = code
	cp.BuiltIn = false
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	if cp.ValidityDays == 0 {
		cp.ValidityDays = 365
	}

	if r.providers != nil {
		if err := r.providers.Put(ctx, &cp); err != nil {
			return fmt.Errorf("failed to persist CA provider: %w", err)
		}
	}

	// Copy-on-write so readers never see a partially updated table
	next := make(map[string]*models.CAProviderConfig, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[code] = &cp
	r.snapshot.Store(&next)

	log.Info().Str("code", code).Str("name", cp.Name).Msg("registered CA provider")
	return nil
}

// IssueCertificate builds a certificate-info snapshot bound to the signer's
// identity and the chosen provider's defaults. This is the seam where a real
// PKI enrollment call would be substituted; the orchestration around it does
// not change when that happens.
func (r *Registry) IssueCertificate(ctx context.Context, signer *models.Signer, providerCode string) (*models.CertificateInfo, error) {
	cfg, err := r.Get(ctx, providerCode)
	if err != nil {
		return nil, err
	}

	serial, err := newSerialNumber()
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := time.Now()
	return &models.CertificateInfo{
		SerialNumber: serial,
		ProviderID:   cfg.Code,
		ProviderName: cfg.Name,
		Subject:      fmt.Sprintf("CN=%s,UID=%s,OU=%s", signer.Name, signer.ID, signer.Role),
		Issuer:       fmt.Sprintf("CN=%s,O=%s", cfg.Name, cfg.Code),
		ValidFrom:    now,
		ValidTo:      now.AddDate(0, 0, cfg.ValidityDays),
		PublicKeyPEM: placeholderPublicKey(signer.ID, cfg.Code),
		Algorithm:    cfg.Algorithm,
		Status:       models.CertStatusValid,
		VerifiedAt:   now,
	}, nil
}

// newSerialNumber generates a random 128-bit serial, hex encoded, matching
// how X.509 serials are conventionally produced.
func newSerialNumber() (string, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return n.Text(16), nil
}

// placeholderPublicKey marks certificate snapshots issued without real key
// material. The signing path replaces it when an actual key pair is in play.
func placeholderPublicKey(signerID, providerCode string) string {
	return fmt.Sprintf("-----BEGIN PLACEHOLDER KEY-----\n%s/%s\n-----END PLACEHOLDER KEY-----", providerCode, signerID)
}
