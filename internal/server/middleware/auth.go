package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/publicai/gateway/internal/consumers"
	"github.com/publicai/gateway/internal/store/cache"
	"github.com/publicai/gateway/pkg/api"
)

// Gin context keys set by the auth middleware.
const (
	ContextConsumer  = "consumer"
	ContextAPIKey    = "api_key"
	ContextUserSub   = "user_sub"
	ContextUserEmail = "user_email"
)

const consumerCacheTTL = 5 * time.Minute

// APIKeyAuth authenticates gateway requests by resolving the Bearer key to a
// registry consumer. Resolutions are cached briefly so the hot path does not
// hit the registry per request.
func APIKeyAuth(registry *consumers.Client, cacheSvc cache.CacheService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(401, api.UnauthorizedError("Missing or malformed Authorization header").Envelope())
			return
		}

		consumer, err := resolveKey(c.Request.Context(), registry, cacheSvc, key, logger)
		if err != nil {
			c.Error(api.APIError("Failed to verify API key", err))
			c.Abort()
			return
		}
		if consumer == nil {
			c.AbortWithStatusJSON(401, api.UnauthorizedError("Invalid API key").Envelope())
			return
		}

		c.Set(ContextAPIKey, key)
		c.Set(ContextConsumer, consumer)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func resolveKey(ctx context.Context, registry *consumers.Client, cacheSvc cache.CacheService, key string, logger *zap.Logger) (*consumers.Consumer, error) {
	// Cache under a hash so raw keys never land in redis.
	sum := sha256.Sum256([]byte(key))
	cacheKey := "auth:key:" + hex.EncodeToString(sum[:])

	if cached, err := cacheSvc.Get(ctx, cacheKey); err == nil {
		var consumer consumers.Consumer
		if jsonErr := json.Unmarshal([]byte(cached), &consumer); jsonErr == nil {
			return &consumer, nil
		}
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		logger.Warn("auth cache read failed", zap.Error(err))
	}

	consumer, err := registry.FindByKey(ctx, key)
	if err != nil || consumer == nil {
		return consumer, err
	}

	if data, jsonErr := json.Marshal(consumer); jsonErr == nil {
		if err := cacheSvc.Set(ctx, cacheKey, string(data), consumerCacheTTL); err != nil {
			logger.Warn("auth cache write failed", zap.Error(err))
		}
	}
	return consumer, nil
}

// RequireSubject guards developer-portal routes. The identity proxy in front
// of the gateway verifies the session and forwards the subject and email.
func RequireSubject() gin.HandlerFunc {
	return func(c *gin.Context) {
		sub := c.GetHeader("X-User-Sub")
		if sub == "" {
			c.AbortWithStatusJSON(401, api.UnauthorizedError("User is not authenticated").Envelope())
			return
		}
		c.Set(ContextUserSub, sub)
		if email := c.GetHeader("X-User-Email"); email != "" {
			c.Set(ContextUserEmail, email)
		}
		c.Next()
	}
}

// ConsumerFromContext returns the consumer resolved by APIKeyAuth.
func ConsumerFromContext(c *gin.Context) (*consumers.Consumer, bool) {
	v, ok := c.Get(ContextConsumer)
	if !ok {
		return nil, false
	}
	consumer, ok := v.(*consumers.Consumer)
	return consumer, ok
}
