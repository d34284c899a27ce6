package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/publicai/gateway/pkg/api"
)

// ErrorHandler converts errors attached by handlers into the standard JSON
// envelope, exactly once.
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			if apiErr.Log != nil {
				logger.Error("request failed",
					zap.String("path", c.Request.URL.Path),
					zap.String("type", string(apiErr.Type)),
					zap.Error(apiErr.Log),
				)
			}
			c.AbortWithStatusJSON(apiErr.Status, apiErr.Envelope())
			return
		}

		logger.Error("unhandled error", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, api.InternalError(err).Envelope())
	}
}
