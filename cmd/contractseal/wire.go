package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"contractseal/internal/config"
	"contractseal/internal/domain"
	"contractseal/internal/infra/artifacts"
	"contractseal/internal/infra/db"
	httpinfra "contractseal/internal/infra/http"
	"contractseal/internal/infra/memstore"
	"contractseal/internal/infra/pdfseal"
	"contractseal/internal/infra/policyopa"
	"contractseal/internal/infra/ratelimit"
	"contractseal/internal/infra/render"
	"contractseal/internal/infra/secrets"
	"contractseal/internal/usecase"
)

type app struct {
	server  *httpinfra.Server
	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("shutdown step failed", "error", err)
		}
	}
}

type persistence struct {
	uow    usecase.UnitOfWork
	audit  usecase.AuditEventRepository
	tokens usecase.AccessTokenRepository
}

func build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}

	provider, err := secrets.NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	secret, err := provider.HashingSecret(ctx)
	if err != nil {
		return nil, err
	}
	engine, err := usecase.NewHashingEngine(secret, time.Now, logger)
	if err != nil {
		return nil, err
	}

	store, err := openPersistence(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	backend, closeBackend, err := newArtifactBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closeBackend != nil {
		a.closers = append(a.closers, closeBackend)
	}
	artifactStore := artifacts.New(ctx, backend, artifacts.Options{
		Roots:   cfg.StorageRoots(),
		Workers: cfg.StorageIOWorkers,
		Logger:  logger,
	})
	if res := artifactStore.Resolution(); res.State == artifacts.StateFailed {
		return nil, &domain.StorageError{Attempted: res.Attempted, Causes: res.Causes}
	}

	policy, err := newSigningPolicy(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("signing policy loaded", "policy_hash", policy.PolicyHash())

	rateLimits, err := ratelimit.ParsePolicies(cfg.RateLimitRoutes, ratelimit.Policy{
		Limit:  cfg.RateLimitRequests,
		Window: cfg.RateLimitWindow(),
	})
	if err != nil {
		return nil, err
	}
	limiter, closeLimiter, err := newRateLimiter(ctx, cfg, rateLimits, logger)
	if err != nil {
		return nil, err
	}
	if closeLimiter != nil {
		a.closers = append(a.closers, closeLimiter)
	}

	audit := usecase.NewAuditLogger(store.audit, time.Now)
	verifier := usecase.NewVerificationService(store.uow, engine, audit, time.Now, logger)
	verifier.BatchConcurrency = cfg.BatchVerifyConcurrency
	workflow := &usecase.SigningWorkflow{
		Store:     store.uow,
		Artifacts: artifactStore,
		Renderer:  render.New(""),
		Sealer:    pdfseal.New(),
		Engine:    engine,
		Verifier:  verifier,
		Audit:     audit,
		Policy:    policy,
		Clock:     time.Now,
		Logger:    logger,
	}

	a.server = httpinfra.NewServer(cfg, httpinfra.ServerDeps{
		Workflow:    workflow,
		Verifier:    verifier,
		Tokens:      usecase.NewAccessTokenIssuer(store.tokens, audit, time.Now),
		Audit:       audit,
		Store:       store.uow,
		Artifacts:   artifactStore,
		RateLimiter: limiter,
		RateLimits:  &rateLimits,
		Logger:      logger,
	})
	return a, nil
}

func openPersistence(ctx context.Context, cfg config.Config, logger *slog.Logger) (persistence, error) {
	store, err := db.NewStore(cfg)
	if err != nil {
		return persistence{}, err
	}
	if !store.Enabled() {
		logger.Warn("using in-memory store; data is lost on restart")
		mem := memstore.New()
		return persistence{uow: mem, audit: mem, tokens: mem}, nil
	}
	if err := store.Ping(ctx); err != nil {
		return persistence{}, err
	}
	if err := store.Migrate(ctx); err != nil {
		return persistence{}, fmt.Errorf("migrate: %w", err)
	}
	return persistence{
		uow:    store,
		audit:  db.NewAuditEventRepository(store.DB),
		tokens: db.NewAccessTokenRepository(store.DB),
	}, nil
}

func newArtifactBackend(ctx context.Context, cfg config.Config) (artifacts.Backend, func() error, error) {
	switch cfg.StorageDriver {
	case config.StorageMinio:
		backend, err := artifacts.NewMinioBackend(artifacts.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, nil, err
		}
		return backend, nil, nil
	case config.StorageGCS:
		backend, err := artifacts.NewGCSBackend(ctx, artifacts.GCSConfig{
			Bucket:   cfg.GCSBucket,
			Endpoint: cfg.GCSEndpoint,
		})
		if err != nil {
			return nil, nil, err
		}
		return backend, backend.Close, nil
	default:
		return artifacts.NewFSBackend(), nil, nil
	}
}

func newSigningPolicy(ctx context.Context, cfg config.Config) (*policyopa.Engine, error) {
	if cfg.SigningPolicyPath != "" {
		return policyopa.NewEngineFromPath(ctx, cfg.SigningPolicyPath)
	}
	return policyopa.NewDefaultEngine(ctx)
}

// newRateLimiter prefers Redis so replicas share counters. An unreachable
// Redis at startup falls back to the in-process limiter.
func newRateLimiter(ctx context.Context, cfg config.Config, policies ratelimit.Policies, logger *slog.Logger) (domain.RateLimiter, func() error, error) {
	if !policies.Enabled() {
		return nil, nil, nil
	}
	if cfg.RedisAddr != "" {
		limiter, err := ratelimit.NewRedisLimiter(ratelimit.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		err = limiter.Ping(pingCtx)
		if err == nil {
			return limiter, limiter.Close, nil
		}
		logger.Warn("redis unavailable, using in-memory rate limiter", "addr", cfg.RedisAddr, "error", err)
		_ = limiter.Close()
	}
	return ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{MaxKeys: cfg.RateLimitMaxKeys}), nil, nil
}
