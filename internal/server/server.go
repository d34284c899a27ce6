package server

import (
	"net/http"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/publicai/gateway/internal/analytics"
	"github.com/publicai/gateway/internal/billing"
	"github.com/publicai/gateway/internal/config"
	"github.com/publicai/gateway/internal/consumers"
	"github.com/publicai/gateway/internal/guardrails/bedrock"
	"github.com/publicai/gateway/internal/identity/auth0"
	"github.com/publicai/gateway/internal/payments/stripe"
	"github.com/publicai/gateway/internal/pricing"
	"github.com/publicai/gateway/internal/proxy"
	"github.com/publicai/gateway/internal/routing"
	"github.com/publicai/gateway/internal/server/middleware"
	"github.com/publicai/gateway/internal/server/validator"
	"github.com/publicai/gateway/internal/store/cache"
)

// Dependencies are the wired services the HTTP layer exposes.
type Dependencies struct {
	Router    *routing.Router
	Forwarder *proxy.Forwarder
	Extractor *proxy.Extractor
	Ingestor  analytics.Ingestor
	Billing   *billing.Service
	Stripe    *stripe.Client
	Auth0     *auth0.Client
	Registry  *consumers.Client
	Pricing   *pricing.Client
	Guardrail *bedrock.Service
	Cache     cache.CacheService
	Version   string
}

type Server struct {
	router *gin.Engine
	config *config.Config
	logger *zap.Logger
	deps   Dependencies
}

func New(cfg *config.Config, logger *zap.Logger, deps Dependencies) *Server {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	validator.InitValidator()

	engine := gin.New()
	engine.Use(ginzap.RecoveryWithZap(logger, true))
	engine.Use(middleware.Logger(logger))
	engine.Use(otelgin.Middleware("gateway"))

	s := &Server{
		router: engine,
		config: cfg,
		logger: logger,
		deps:   deps,
	}

	s.SetupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}
