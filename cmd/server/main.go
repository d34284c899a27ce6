package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/publicai/gateway/cmd"
	"github.com/publicai/gateway/internal/analytics"
	"github.com/publicai/gateway/internal/billing"
	"github.com/publicai/gateway/internal/billing/lago"
	"github.com/publicai/gateway/internal/config"
	"github.com/publicai/gateway/internal/consumers"
	"github.com/publicai/gateway/internal/guardrails/bedrock"
	"github.com/publicai/gateway/internal/identity/auth0"
	"github.com/publicai/gateway/internal/payments/stripe"
	"github.com/publicai/gateway/internal/platform/logger"
	"github.com/publicai/gateway/internal/platform/otel"
	"github.com/publicai/gateway/internal/pricing"
	"github.com/publicai/gateway/internal/proxy"
	"github.com/publicai/gateway/internal/routing"
	"github.com/publicai/gateway/internal/server"
	"github.com/publicai/gateway/internal/store/cache"
	"github.com/publicai/gateway/internal/store/sqlite"
)

func main() {
	cmd.CheckForUpdates()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	logger.Initialize(logger.DefaultConfig())
	log := logger.Get()
	defer logger.Sync()

	shutdownTracer, err := otel.InitTracer("gateway", log, os.Stdout)
	if err != nil {
		log.Fatal("failed to initialize tracer", zap.Error(err))
	}

	// Shared cache: redis when enabled, in-process otherwise.
	var cacheSvc cache.CacheService
	if cfg.Redis.Enabled {
		cacheSvc, err = cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
	} else {
		cacheSvc = cache.NewMemoryCache()
	}
	defer cacheSvc.Close()

	repo, err := sqlite.New(cfg.Store.DSN, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer repo.Close()

	table, err := routing.NewTable(cfg.Providers, cfg.Models)
	if err != nil {
		log.Fatal("invalid routing configuration", zap.Error(err))
	}
	router := routing.NewRouter(table, log)

	httpClient := &http.Client{Timeout: 5 * time.Minute}
	apiClient := &http.Client{Timeout: 30 * time.Second}

	lagoClient := lago.NewClient(cfg.Billing.LagoBaseURL, cfg.Billing.LagoAPIKey, apiClient, log)
	billingSvc := billing.NewService(lagoClient, repo, log,
		cfg.Billing.WelcomeCreditsUSD, cfg.Billing.PlanCode, cfg.Billing.PaymentProvider, cfg.Billing.MinBalanceUSD)

	ingestor := analytics.NewIngestor(log, repo)

	deps := server.Dependencies{
		Router:    router,
		Forwarder: proxy.NewForwarder(httpClient, log),
		Extractor: proxy.NewExtractor(log, cfg.Proxy.ScanChunkLimit, cfg.Proxy.StreamReadTimeout),
		Ingestor:  ingestor,
		Billing:   billingSvc,
		Stripe:    stripe.NewClient(cfg.Stripe.BaseURL, cfg.Stripe.APIKey, apiClient),
		Auth0:     auth0.NewClient(cfg.Auth0.Domain, cfg.Auth0.ClientID, cfg.Auth0.ClientSecret, apiClient, cacheSvc, log),
		Registry:  consumers.NewClient(cfg.Consumers.BaseURL, cfg.Consumers.AccountName, cfg.Consumers.BucketName, cfg.Consumers.APIKey, apiClient, log),
		Pricing:   pricing.NewClient(cfg.Pricing.BaseURL, cfg.Pricing.APIKey, apiClient, cacheSvc, log),
		Guardrail: bedrock.NewService(cfg.Guardrail.GuardrailID, cfg.Guardrail.Version, cfg.Guardrail.Region,
			bedrock.Credentials{AccessKeyID: cfg.Guardrail.AccessKeyID, SecretAccessKey: cfg.Guardrail.SecretAccessKey},
			apiClient, log),
		Cache:   cacheSvc,
		Version: cmd.AppVersion,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ingestor.Start(ctx)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: server.New(cfg, log, deps).Handler(),
	}

	go func() {
		log.Info("starting gateway", zap.String("port", cfg.Server.Port), zap.String("env", cfg.Server.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	ingestor.Stop()
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error("tracer shutdown failed", zap.Error(err))
	}
}
