package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORS allows browser portal clients to call the API directly.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-User-Sub, X-User-Email")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Inference-Id, X-Selected-Provider, X-Compute-Location")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
