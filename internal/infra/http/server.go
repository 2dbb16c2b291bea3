package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"contractseal/internal/config"
	"contractseal/internal/domain"
	"contractseal/internal/infra/artifacts"
	"contractseal/internal/infra/ratelimit"
	"contractseal/internal/usecase"

	"github.com/gin-gonic/gin"
)

// ArtifactInventory is the read-only view of the artifact store the API
// exposes.
type ArtifactInventory interface {
	List(ctx context.Context, contractID string) ([]string, error)
	Resolution() artifacts.Resolution
}

type Server struct {
	cfg    config.Config
	r      *gin.Engine
	logger *slog.Logger

	workflow  *usecase.SigningWorkflow
	verifier  *usecase.VerificationService
	tokens    *usecase.AccessTokenIssuer
	audit     *usecase.AuditLogger
	store     usecase.Reader
	artifacts ArtifactInventory

	rateLimiter         domain.RateLimiter
	rateLimits          ratelimit.Policies
	rateLimitFailClosed bool

	clock usecase.Clock
}

type ServerDeps struct {
	Workflow    *usecase.SigningWorkflow
	Verifier    *usecase.VerificationService
	Tokens      *usecase.AccessTokenIssuer
	Audit       *usecase.AuditLogger
	Store       usecase.Reader
	Artifacts   ArtifactInventory
	RateLimiter domain.RateLimiter
	// RateLimits defaults to one budget for every route from cfg.
	RateLimits *ratelimit.Policies
	Logger     *slog.Logger
	Clock      usecase.Clock
}

func NewServer(cfg config.Config, deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := gin.New()
	r.Use(requestID(), requestLogger(logger), recovery(logger))

	s := &Server{
		cfg:                 cfg,
		r:                   r,
		logger:              logger,
		workflow:            deps.Workflow,
		verifier:            deps.Verifier,
		tokens:              deps.Tokens,
		audit:               deps.Audit,
		store:               deps.Store,
		artifacts:           deps.Artifacts,
		rateLimiter:         deps.RateLimiter,
		rateLimitFailClosed: cfg.RateLimitFailClosed,
		clock:               deps.Clock,
	}
	if deps.RateLimits != nil {
		s.rateLimits = *deps.RateLimits
	} else {
		s.rateLimits = ratelimit.Policies{Default: ratelimit.Policy{Limit: cfg.RateLimitRequests, Window: cfg.RateLimitWindow()}}
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.GET("/healthz", s.handleHealth)

	v1 := s.r.Group("/v1")
	{
		v1.POST("/contracts", s.handleRegisterContract)
		v1.GET("/contracts/:contract_id", s.handleGetContract)
		v1.PUT("/contracts/:contract_id/fields", s.handleEditContract)
		v1.POST("/contracts/:contract_id/document", s.handleGenerateDocument)
		v1.POST("/contracts/:contract_id/sign", s.handleSignContract)
		v1.POST("/contracts/:contract_id/verify", s.handleVerifyContract)
		v1.GET("/contracts/:contract_id/signed", s.handleDownloadSigned)
		v1.GET("/contracts/:contract_id/artifacts", s.handleListArtifacts)
		v1.GET("/contracts/:contract_id/signatures", s.handleSignatureHistory)
		v1.POST("/contracts/:contract_id/signatures/verify", s.handleVerifySignature)
		v1.GET("/contracts/:contract_id/qr.png", s.handleQRCode)
		v1.GET("/contracts/:contract_id/audit", s.handleAuditTrail)
		v1.POST("/contracts/:contract_id/access-tokens", s.handleIssueAccessToken)

		v1.POST("/signatures/verify-batch", s.handleVerifyBatch)
		v1.POST("/qr/verify", s.handleVerifyQR)
		v1.GET("/shared/:token", s.handleShared)
	}
}

// Handler exposes the router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.logger.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}
