package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/publicai/gateway/internal/billing"
	"github.com/publicai/gateway/internal/server/validator"
	"github.com/publicai/gateway/pkg/api"
)

// BillingHandler answers spend-reconciliation queries from the billing
// pipeline.
type BillingHandler struct {
	billing *billing.Service
}

func NewBillingHandler(svc *billing.Service) *BillingHandler {
	return &BillingHandler{billing: svc}
}

type spendRequest struct {
	RequestIDs []string `json:"requestIds" binding:"required"`
}

func (h *BillingHandler) GetRequestSpend(c *gin.Context) {
	var req spendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(api.ValidationError(validator.Describe(validator.ParseValidationError(err))))
		return
	}

	spend, err := h.billing.SpendForRequests(c.Request.Context(), req.RequestIDs)
	if err != nil {
		c.Error(api.APIError("Failed to resolve request spend", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"requests": spend})
}
