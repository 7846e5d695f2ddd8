package ca

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/medichain/docsign/internal/models"
	"github.com/medichain/docsign/internal/store"
	"github.com/medichain/docsign/internal/store/memory"
)

func TestRegistry_ListIncludesBuiltins(t *testing.T) {
	r := NewRegistry(memory.NewCAProviderStore(), "")

	providers, err := r.List(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(providers), 4)

	codes := map[string]bool{}
	for _, p := range providers {
		codes[p.Code] = true
	}
	require.True(t, codes["VNCA"])
	require.True(t, codes["SELF"])
}

func TestRegistry_GetFallsBackToDefault(t *testing.T) {
	r := NewRegistry(memory.NewCAProviderStore(), "")
	ctx := context.Background()

	t.Run("empty code returns default", func(t *testing.T) {
		cfg, err := r.Get(ctx, "")
		require.NoError(t, err)
		require.Equal(t, "VNCA", cfg.Code)
	})

	t.Run("unknown code returns default", func(t *testing.T) {
		cfg, err := r.Get(ctx, "no-such-ca")
		require.NoError(t, err)
		require.Equal(t, "VNCA", cfg.Code)
	})

	t.Run("lookup is case-insensitive", func(t *testing.T) {
		cfg, err := r.Get(ctx, "vnca")
		require.NoError(t, err)
		require.Equal(t, "VNCA", cfg.Code)
	})
}

func TestRegistry_Register(t *testing.T) {
	t.Run("registered provider is immediately visible", func(t *testing.T) {
		providerStore := memory.NewCAProviderStore()
		r := NewRegistry(providerStore, "")
		ctx := context.Background()

		err := r.Register(ctx, &models.CAProviderConfig{
			Code:      "ACME-CA",
			Name:      "Acme Certificates",
			Algorithm: "ECDSA-SHA256",
			Active:    true,
		})
		require.NoError(t, err)

		cfg, err := r.Get(ctx, "acme-ca")
		require.NoError(t, err)
		require.Equal(t, "ACME-CA", cfg.Code)
		require.False(t, cfg.BuiltIn)

		// Persisted, not just cached
		persisted, err := providerStore.List(ctx)
		require.NoError(t, err)
		require.Len(t, persisted, 1)
	})

	t.Run("duplicate code rejected", func(t *testing.T) {
		r := NewRegistry(memory.NewCAProviderStore(), "")
		ctx := context.Background()

		require.NoError(t, r.Register(ctx, &models.CAProviderConfig{Code: "ACME-CA", Name: "Acme"}))

		err := r.Register(ctx, &models.CAProviderConfig{Code: "ACME-CA", Name: "Acme Again"})
		require.ErrorIs(t, err, store.ErrDuplicateCode)
	})

	t.Run("builtin code cannot be shadowed", func(t *testing.T) {
		r := NewRegistry(memory.NewCAProviderStore(), "")

		err := r.Register(context.Background(), &models.CAProviderConfig{Code: "VNCA", Name: "Impostor"})
		require.ErrorIs(t, err, store.ErrDuplicateCode)
	})

	t.Run("lowercase code rejected", func(t *testing.T) {
		r := NewRegistry(memory.NewCAProviderStore(), "")

		err := r.Register(context.Background(), &models.CAProviderConfig{Code: "a", Name: "bad"})
		require.ErrorIs(t, err, ErrInvalidCode)
	})
}

func TestRegistry_ConcurrentFirstLoad(t *testing.T) {
	r := NewRegistry(memory.NewCAProviderStore(), "")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cfg, err := r.Get(ctx, "vnca")
			require.NoError(t, err)
			require.Equal(t, "VNCA", cfg.Code)
		}()
	}
	wg.Wait()
}

func TestRegistry_IssueCertificate(t *testing.T) {
	r := NewRegistry(memory.NewCAProviderStore(), "")
	ctx := context.Background()

	signer := &models.Signer{ID: "signer-1", Name: "Jane Pharmacist", Role: "qa_manager"}

	cert, err := r.IssueCertificate(ctx, signer, "vnca")
	require.NoError(t, err)
	require.NotEmpty(t, cert.SerialNumber)
	require.Equal(t, "VNCA", cert.ProviderID)
	require.Contains(t, cert.Subject, "CN=Jane Pharmacist")
	require.Contains(t, cert.Subject, "UID=signer-1")
	require.Contains(t, cert.Issuer, "Vietnam National CA")
	require.Equal(t, models.CertStatusValid, cert.Status)
	require.True(t, cert.ValidTo.After(cert.ValidFrom))

	// Serials are unique per issuance
	cert2, err := r.IssueCertificate(ctx, signer, "vnca")
	require.NoError(t, err)
	require.NotEqual(t, cert.SerialNumber, cert2.SerialNumber)
}
