package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medichain/docsign/internal/batch"
	"github.com/medichain/docsign/internal/ca"
	"github.com/medichain/docsign/internal/config"
	"github.com/medichain/docsign/internal/hsm"
	"github.com/medichain/docsign/internal/logger"
	"github.com/medichain/docsign/internal/models"
	"github.com/medichain/docsign/internal/signing"
	"github.com/medichain/docsign/internal/store"
	memorystore "github.com/medichain/docsign/internal/store/memory"
	postgresstore "github.com/medichain/docsign/internal/store/postgres"
	"github.com/medichain/docsign/internal/template"
	"github.com/medichain/docsign/internal/tsa"
)

type ServeCmd struct {
	Listen string `help:"HTTP server listen address" default:"localhost:8280" env:"DOCSIGN_LISTEN"`
	Config string `help:"path to YAML config file" default:"" env:"DOCSIGN_CONFIG" type:"path"`
}

// service holds the wired pipeline for the lifetime of the process. Only the
// health endpoint is served over HTTP; the signing operations are consumed as
// a library by the surrounding business services.
type service struct {
	hsmEnabled  bool
	gateway     *hsm.Gateway
	verifier    *signing.Verifier
	coordinator *batch.Coordinator
}

// healthz probes the HSM gateway and round-trips the signature store via a
// lookup that is expected to miss.
func (s *service) healthz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.hsmEnabled {
		if err := s.gateway.TestConnection(ctx, ""); err != nil {
			http.Error(w, fmt.Sprintf("hsm unavailable: %v", err), http.StatusServiceUnavailable)
			return
		}
	}

	if _, err := s.verifier.Verify(ctx, uuid.New(), nil); err != nil {
		http.Error(w, fmt.Sprintf("store unavailable: %v", err), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "ok")
}

type stores struct {
	signatures store.SignatureStore
	templates  store.TemplateStore
	batches    store.BatchStore
	signers    store.SignerStore
	providers  store.CAProviderStore
	pool       *pgxpool.Pool
}

func (s *stores) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (c *ServeCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting signing service")

	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}

	st, err := buildStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	registry := ca.NewRegistry(st.providers, cfg.DefaultCA)
	for _, p := range cfg.CAProviders {
		err := registry.Register(ctx, &models.CAProviderConfig{
			Code:         p.Code,
			Name:         p.Name,
			EndpointURL:  p.EndpointURL,
			Algorithm:    p.Algorithm,
			KeySize:      p.KeySize,
			ValidityDays: p.ValidityDays,
			SupportsHSM:  p.SupportsHSM,
			Description:  p.Description,
			Active:       true,
		})
		if err != nil && !errors.Is(err, store.ErrDuplicateCode) {
			return fmt.Errorf("failed to register CA provider %s: %w", p.Code, err)
		}
	}

	gateway, err := buildGateway(ctx, cfg)
	if err != nil {
		return err
	}

	var tsaClient tsa.Client
	if cfg.TSA.URL != "" {
		tsaClient = tsa.NewHTTPClient(tsa.HTTPClientConfig{
			URL:            cfg.TSA.URL,
			RequestTimeout: time.Duration(cfg.TSA.TimeoutSeconds) * time.Second,
		})
	} else {
		log.Warn().Msg("No TSA URL configured, using deterministic mock timestamps")
		tsaClient = tsa.NewMockClient()
	}

	local, err := buildLocalSigner(cfg)
	if err != nil {
		return err
	}

	orchestrator := signing.NewOrchestrator(signing.OrchestratorConfig{
		Signatures: st.signatures,
		Signers:    st.signers,
		Registry:   registry,
		Templates:  template.NewEngine(st.templates),
		Gateway:    gateway,
		TSA:        tsaClient,
		Local:      local,
	})

	svc := &service{
		hsmEnabled:  cfg.HSM.Enabled,
		gateway:     gateway,
		verifier:    signing.NewVerifier(st.signatures, tsaClient),
		coordinator: batch.NewCoordinator(st.batches, st.templates, orchestrator),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", svc.healthz)

	srv := configureHTTPServer(c.Listen, logger.Requests(log, mux))

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", c.Listen).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Storage.Driver == "postgres" {
		pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
			ConnString:  cfg.Storage.ConnString,
			AutoMigrate: cfg.Storage.AutoMigrate,
		})
		if err != nil {
			return nil, err
		}
		return &stores{
			signatures: postgresstore.NewSignatureStore(pool),
			templates:  postgresstore.NewTemplateStore(pool),
			batches:    postgresstore.NewBatchStore(pool),
			signers:    postgresstore.NewSignerStore(pool),
			providers:  postgresstore.NewCAProviderStore(pool),
			pool:       pool,
		}, nil
	}

	return &stores{
		signatures: memorystore.NewSignatureStore(),
		templates:  memorystore.NewTemplateStore(),
		batches:    memorystore.NewBatchStore(),
		signers:    memorystore.NewSignerStore(),
		providers:  memorystore.NewCAProviderStore(),
	}, nil
}

func buildGateway(ctx context.Context, cfg *config.Config) (*hsm.Gateway, error) {
	gateway := hsm.NewGateway(cfg.HSM.Enabled, cfg.HSM.DefaultProvider)

	for _, p := range cfg.HSM.Providers {
		switch p.Type {
		case "mock":
			gateway.RegisterProvider(hsm.NewMockProvider(p.ID))
		case "local-key":
			provider, err := hsm.NewLocalKeyProvider(p.ID, p.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load HSM provider %s: %w", p.ID, err)
			}
			gateway.RegisterProvider(provider)
		case "aws-kms":
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to load AWS config: %w", err)
			}
			provider, err := hsm.NewKMSProvider(ctx, p.ID, awsCfg, p.KMSKeyID)
			if err != nil {
				return nil, fmt.Errorf("failed to init KMS provider %s: %w", p.ID, err)
			}
			gateway.RegisterProvider(provider)
		}
	}

	return gateway, nil
}

func buildLocalSigner(cfg *config.Config) (*signing.LocalSigner, error) {
	if cfg.Signing.KeyFile != "" {
		return signing.NewLocalSignerFromPEM(cfg.Signing.KeyFile, cfg.Signing.AllowMock)
	}
	return signing.NewLocalSigner(nil, cfg.Signing.AllowMock), nil
}
