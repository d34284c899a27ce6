package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/publicai/gateway/internal/billing"
	"github.com/publicai/gateway/internal/consumers"
	"github.com/publicai/gateway/internal/identity/auth0"
	"github.com/publicai/gateway/internal/payments/stripe"
	"github.com/publicai/gateway/internal/pricing"
	"github.com/publicai/gateway/internal/server/middleware"
	"github.com/publicai/gateway/internal/server/validator"
	"github.com/publicai/gateway/pkg/api"
)

// DeveloperHandler serves the developer-portal surface: wallets, payment
// methods, API keys, and pricing.
type DeveloperHandler struct {
	billing  *billing.Service
	stripe   *stripe.Client
	auth0    *auth0.Client
	registry *consumers.Client
	pricing  *pricing.Client
	logger   *zap.Logger
}

func NewDeveloperHandler(billingSvc *billing.Service, stripeClient *stripe.Client, auth0Client *auth0.Client, registry *consumers.Client, pricingClient *pricing.Client, logger *zap.Logger) *DeveloperHandler {
	return &DeveloperHandler{
		billing:  billingSvc,
		stripe:   stripeClient,
		auth0:    auth0Client,
		registry: registry,
		pricing:  pricingClient,
		logger:   logger,
	}
}

// consumer resolves the authenticated subject to its registry consumer and
// reports the error itself when that fails.
func (h *DeveloperHandler) consumer(c *gin.Context) (*consumers.Consumer, bool) {
	sub := c.GetString(middleware.ContextUserSub)
	if sub == "" {
		c.Error(api.UnauthorizedError("User is not authenticated"))
		return nil, false
	}

	consumer, err := h.registry.FindBySub(c.Request.Context(), sub)
	if err != nil {
		c.Error(api.APIError("Failed to look up account", err))
		return nil, false
	}
	if consumer == nil {
		c.Error(api.NotFoundError("No account found for this user"))
		return nil, false
	}
	return consumer, true
}

func (h *DeveloperHandler) GetWallet(c *gin.Context) {
	consumer, ok := h.consumer(c)
	if !ok {
		return
	}

	wallet, err := h.billing.Wallet(c.Request.Context(), consumer.Name)
	if err != nil {
		c.Error(api.APIError("Failed to fetch wallet", err))
		return
	}
	if wallet == nil {
		c.Error(api.NotFoundError("No wallet found"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"wallet": wallet})
}

type topUpRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

func (h *DeveloperHandler) TopUpWallet(c *gin.Context) {
	consumer, ok := h.consumer(c)
	if !ok {
		return
	}

	var req topUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(api.ValidationError(validator.Describe(validator.ParseValidationError(err))))
		return
	}

	wallet, err := h.billing.Wallet(c.Request.Context(), consumer.Name)
	if err != nil {
		c.Error(api.APIError("Failed to fetch wallet", err))
		return
	}
	if wallet == nil {
		c.Error(api.NotFoundError("No wallet found"))
		return
	}

	tx, err := h.billing.Lago().TopUpWallet(c.Request.Context(), wallet.LagoID, req.Amount)
	if err != nil {
		c.Error(api.APIError("Failed to create top-up", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"wallet_transaction": tx})
}

func (h *DeveloperHandler) ListWalletTransactions(c *gin.Context) {
	consumer, ok := h.consumer(c)
	if !ok {
		return
	}

	wallet, err := h.billing.Wallet(c.Request.Context(), consumer.Name)
	if err != nil {
		c.Error(api.APIError("Failed to fetch wallet", err))
		return
	}
	if wallet == nil {
		c.Error(api.NotFoundError("No wallet found"))
		return
	}

	transactions, err := h.billing.Lago().ListWalletTransactions(c.Request.Context(), wallet.LagoID, 20, 1)
	if err != nil {
		c.Error(api.APIError("Failed to list transactions", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"wallet_transactions": transactions})
}

func (h *DeveloperHandler) TransactionPaymentURL(c *gin.Context) {
	if _, ok := h.consumer(c); !ok {
		return
	}

	url, err := h.billing.Lago().PaymentURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(api.APIError("Failed to generate payment url", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment_url": url})
}

func (h *DeveloperHandler) CheckoutURL(c *gin.Context) {
	consumer, ok := h.consumer(c)
	if !ok {
		return
	}

	url, err := h.billing.Lago().CheckoutURL(c.Request.Context(), consumer.Name)
	if err != nil {
		c.Error(api.APIError("Failed to generate checkout url", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"checkout_url": url})
}

// HasPaymentMethod reports whether a card is on file. Billing or payment
// provider outages degrade to false rather than failing the portal page.
func (h *DeveloperHandler) HasPaymentMethod(c *gin.Context) {
	consumer, ok := h.consumer(c)
	if !ok {
		return
	}

	customer, err := h.billing.Lago().GetCustomer(c.Request.Context(), consumer.Name)
	if err != nil || customer.BillingConfiguration.ProviderCustomerID == "" {
		if err != nil {
			h.logger.Warn("customer lookup failed", zap.String("consumer", consumer.Name), zap.Error(err))
		}
		c.JSON(http.StatusOK, gin.H{"hasPaymentMethod": false})
		return
	}

	methods, err := h.stripe.ListCardPaymentMethods(c.Request.Context(), customer.BillingConfiguration.ProviderCustomerID)
	if err != nil {
		h.logger.Warn("payment method lookup failed", zap.String("consumer", consumer.Name), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"hasPaymentMethod": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"hasPaymentMethod": len(methods) > 0})
}

func (h *DeveloperHandler) DeletePaymentMethod(c *gin.Context) {
	consumer, ok := h.consumer(c)
	if !ok {
		return
	}

	customer, err := h.billing.Lago().GetCustomer(c.Request.Context(), consumer.Name)
	if err != nil {
		c.Error(api.APIError("Failed to fetch billing account", err))
		return
	}
	providerCustomerID := customer.BillingConfiguration.ProviderCustomerID
	if providerCustomerID == "" {
		c.Error(api.NotFoundError("No payment account on file"))
		return
	}

	id := c.Param("id")
	method, err := h.stripe.GetPaymentMethod(c.Request.Context(), id)
	if err != nil {
		c.Error(api.NotFoundError("Payment method not found", api.WithLog(err)))
		return
	}
	// Only the owning customer may detach a payment method.
	if method.Customer != providerCustomerID {
		c.Error(api.NewError(http.StatusForbidden, api.TypeUnauthorized, "Payment method does not belong to this account"))
		return
	}

	detached, err := h.stripe.DetachPaymentMethod(c.Request.Context(), id)
	if err != nil {
		c.Error(api.APIError("Failed to delete payment method", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "payment_method": detached})
}

type createKeyRequest struct {
	Email string `json:"email" binding:"omitempty,email"`
}

// CreateKey issues an API key, registering the consumer and provisioning
// billing on first use. When the portal does not send an email, the Auth0
// profile provides it.
func (h *DeveloperHandler) CreateKey(c *gin.Context) {
	sub := c.GetString(middleware.ContextUserSub)
	if sub == "" {
		c.Error(api.UnauthorizedError("User is not authenticated"))
		return
	}

	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(api.ValidationError(validator.Describe(validator.ParseValidationError(err))))
		return
	}

	ctx := c.Request.Context()
	if req.Email == "" {
		user, err := h.auth0.UserBySub(ctx, sub)
		if err != nil {
			c.Error(api.APIError("Failed to resolve user profile", err))
			return
		}
		req.Email = user.Email
	}
	if req.Email == "" {
		c.Error(api.ValidationError("email is required"))
		return
	}
	consumer, err := h.registry.FindBySub(ctx, sub)
	if err != nil {
		c.Error(api.APIError("Failed to look up account", err))
		return
	}

	if consumer != nil {
		key, err := h.registry.IssueKey(ctx, consumer.Name)
		if err != nil {
			c.Error(api.APIError("Failed to issue API key", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"consumer": consumer.Name, "api_key": key})
		return
	}

	consumer, err = h.registry.CreateWithKey(ctx, req.Email, sub)
	if err != nil {
		c.Error(api.APIError("Failed to create account", err))
		return
	}

	// First key: provision billing alongside. A billing failure is retried on
	// the next wallet access and must not lose the key that was just minted.
	if _, err := h.billing.EnsureCustomer(ctx, consumer.Name, consumer.Name, req.Email); err != nil {
		h.logger.Error("billing provisioning failed", zap.String("consumer", consumer.Name), zap.Error(err))
	}

	var key *consumers.APIKey
	if len(consumer.APIKeys) > 0 {
		key = &consumer.APIKeys[0]
	}
	c.JSON(http.StatusCreated, gin.H{"consumer": consumer.Name, "api_key": key})
}

// GetPricing passes the upstream pricing document through to the portal.
func (h *DeveloperHandler) GetPricing(c *gin.Context) {
	raw, err := h.pricing.ModelInfoRaw(c.Request.Context())
	if err != nil {
		c.Error(api.APIError("Failed to fetch pricing", err))
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}
