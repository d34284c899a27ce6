package v1

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/publicai/gateway/internal/consumers"
	"github.com/publicai/gateway/internal/server/validator"
	"github.com/publicai/gateway/pkg/api"
)

// WebhookHandler receives plan changes pushed by the billing provider.
type WebhookHandler struct {
	registry *consumers.Client
	secret   string
	logger   *zap.Logger
}

func NewWebhookHandler(registry *consumers.Client, secret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{registry: registry, secret: secret, logger: logger}
}

type planUpdateRequest struct {
	Email string `json:"email" binding:"required,email"`
	Plan  string `json:"plan" binding:"required,oneof=free pro pay_as_you_go"`
}

func (h *WebhookHandler) UpdatePlan(c *gin.Context) {
	secret := c.Query("secret")
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.secret)) != 1 {
		c.Error(api.UnauthorizedError("Invalid webhook secret"))
		return
	}

	var req planUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(api.ValidationError(validator.Describe(validator.ParseValidationError(err))))
		return
	}

	consumer, err := h.registry.FindByEmail(c.Request.Context(), req.Email)
	if err != nil {
		c.Error(api.APIError("Failed to look up account", err))
		return
	}
	if consumer == nil {
		c.Error(api.NotFoundError("No account found for this email"))
		return
	}

	if err := h.registry.UpdatePlan(c.Request.Context(), consumer.Name, req.Plan); err != nil {
		c.Error(api.APIError("Failed to update plan", err))
		return
	}

	h.logger.Info("plan updated", zap.String("consumer", consumer.Name), zap.String("plan", req.Plan))
	c.JSON(http.StatusOK, gin.H{"success": true})
}
