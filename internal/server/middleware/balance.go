package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/publicai/gateway/internal/billing"
	"github.com/publicai/gateway/pkg/api"
)

// BalanceGate rejects billable requests once the consumer's wallet runs dry.
// A billing outage does not block inference; the check fails open and the
// shortfall is reconciled later.
func BalanceGate(svc *billing.Service, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		consumer, ok := ConsumerFromContext(c)
		if !ok {
			c.Next()
			return
		}

		sufficient, err := svc.HasSufficientBalance(c.Request.Context(), consumer.Name)
		if err != nil {
			logger.Error("balance check failed", zap.String("consumer", consumer.Name), zap.Error(err))
			c.Next()
			return
		}
		if !sufficient {
			c.AbortWithStatusJSON(402,
				api.InsufficientBalanceError("Insufficient balance. Please top up your wallet to continue.").Envelope())
			return
		}

		c.Next()
	}
}
