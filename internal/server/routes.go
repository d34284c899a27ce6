package server

import (
	"github.com/publicai/gateway/internal/server/middleware"
	v1 "github.com/publicai/gateway/internal/server/v1"
)

func (s *Server) SetupRoutes() {
	s.router.Use(middleware.CORS())
	s.router.Use(middleware.ErrorHandler(s.logger))

	healthHandler := v1.NewHealthHandler(s.deps.Version)
	s.router.GET("/health", healthHandler.Health)

	rateLimiter := middleware.NewRateLimiter(s.config.RateLimit.RequestsPerMinute, s.config.RateLimit.Burst, s.logger)

	api := s.router.Group("/v1")

	// Inference surface: API-key consumers.
	inference := api.Group("")
	inference.Use(middleware.APIKeyAuth(s.deps.Registry, s.deps.Cache, s.logger))
	inference.Use(rateLimiter.Middleware())
	inference.Use(middleware.BalanceGate(s.deps.Billing, s.logger))
	{
		chatHandler := v1.NewChatHandler(s.deps.Router, s.deps.Forwarder, s.deps.Extractor, s.deps.Ingestor, s.deps.Pricing, s.logger)
		inference.POST("/chat/completions", middleware.Guardrail(s.deps.Guardrail, s.logger), chatHandler.CreateCompletion)

		modelHandler := v1.NewModelHandler(s.deps.Pricing, s.logger)
		inference.GET("/models", modelHandler.ListModels)
	}

	// Developer portal surface: authenticated browser sessions, identity
	// forwarded by the edge proxy.
	developerHandler := v1.NewDeveloperHandler(s.deps.Billing, s.deps.Stripe, s.deps.Auth0, s.deps.Registry, s.deps.Pricing, s.logger)
	developer := api.Group("/developer")
	developer.Use(middleware.RequireSubject())
	{
		developer.GET("/wallet", developerHandler.GetWallet)
		developer.POST("/wallet/topup", developerHandler.TopUpWallet)
		developer.GET("/wallet/transactions", developerHandler.ListWalletTransactions)
		developer.POST("/wallet/transactions/:id/payment-url", developerHandler.TransactionPaymentURL)
		developer.POST("/checkout-url", developerHandler.CheckoutURL)
		developer.GET("/payment-methods", developerHandler.HasPaymentMethod)
		developer.DELETE("/payment-methods/:id", developerHandler.DeletePaymentMethod)
		developer.POST("/keys", developerHandler.CreateKey)
		developer.GET("/pricing", developerHandler.GetPricing)
	}

	// Billing pipeline surface.
	billingHandler := v1.NewBillingHandler(s.deps.Billing)
	api.POST("/billing/requests", billingHandler.GetRequestSpend)

	webhookHandler := v1.NewWebhookHandler(s.deps.Registry, s.config.Consumers.WebhookSecret, s.logger)
	api.POST("/webhooks/plan", webhookHandler.UpdatePlan)
}
