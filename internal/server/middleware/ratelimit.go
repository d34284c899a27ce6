package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/publicai/gateway/pkg/api"
)

// RateLimiter manages per-API-key token buckets. Requests without a resolved
// key share one strict bucket.
type RateLimiter struct {
	clients map[string]*rate.Limiter
	shared  *rate.Limiter
	mu      sync.RWMutex
	rps     rate.Limit
	burst   int
	logger  *zap.Logger
}

// NewRateLimiter builds a limiter allowing requestsPerMinute sustained per
// key.
func NewRateLimiter(requestsPerMinute, burst int, logger *zap.Logger) *RateLimiter {
	rps := rate.Limit(float64(requestsPerMinute) / 60)
	return &RateLimiter{
		clients: make(map[string]*rate.Limiter),
		shared:  rate.NewLimiter(rps, 1),
		rps:     rps,
		burst:   burst,
		logger:  logger,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.clients[key]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists = rl.clients[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rl.rps, rl.burst)
	rl.clients[key] = limiter

	return limiter
}

// Middleware returns the Gin middleware handler.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := rl.shared
		if key := c.GetString(ContextAPIKey); key != "" {
			limiter = rl.getLimiter(key)
		}

		if !limiter.Allow() {
			rl.logger.Warn("rate limit exceeded", zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				api.NewError(http.StatusTooManyRequests, api.TypeAPIError, "Rate limit exceeded").Envelope())
			return
		}

		c.Next()
	}
}
