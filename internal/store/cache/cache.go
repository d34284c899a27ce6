package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss reports an absent or expired key.
var ErrCacheMiss = errors.New("cache: key not found")

// CacheService is the shared cache abstraction. Values are opaque strings;
// callers serialize what they need (the Auth0 token cache stores raw tokens,
// the pricing cache stores JSON).
type CacheService interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
