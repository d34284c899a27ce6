package auth0

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/publicai/gateway/internal/httpclient"
	"github.com/publicai/gateway/internal/store/cache"
)

const tokenCacheKey = "auth0:management_token"

// Tokens are issued for 24h; caching slightly shorter avoids handing out a
// token that expires mid-request.
const tokenCacheTTL = 23 * time.Hour

// User is the subset of the Auth0 user profile the portal needs.
type User struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// Client wraps the Auth0 Management API with a cached machine-to-machine
// token.
type Client struct {
	domain       string
	clientID     string
	clientSecret string
	http         httpclient.HTTPClient
	cache        cache.CacheService
	logger       *zap.Logger
}

func NewClient(domain, clientID, clientSecret string, http httpclient.HTTPClient, cacheSvc cache.CacheService, logger *zap.Logger) *Client {
	return &Client{
		domain:       strings.TrimRight(domain, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		http:         http,
		cache:        cacheSvc,
		logger:       logger,
	}
}

// ManagementToken returns a valid management API token, minting one only on
// cache miss.
func (c *Client) ManagementToken(ctx context.Context) (string, error) {
	token, err := c.cache.Get(ctx, tokenCacheKey)
	if err == nil && token != "" {
		return token, nil
	}
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("token cache read failed", zap.Error(err))
	}

	body := map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"audience":      c.domain + "/api/v2/",
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := httpclient.SendJSON(ctx, c.http, "POST", c.domain+"/oauth/token", nil, body, &out); err != nil {
		return "", fmt.Errorf("failed to obtain management token: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("management token response was empty")
	}

	if err := c.cache.Set(ctx, tokenCacheKey, out.AccessToken, tokenCacheTTL); err != nil {
		c.logger.Warn("token cache write failed", zap.Error(err))
	}
	return out.AccessToken, nil
}

// UserBySub fetches the user profile for an Auth0 subject identifier.
func (c *Client) UserBySub(ctx context.Context, sub string) (*User, error) {
	token, err := c.ManagementToken(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := c.domain + "/api/v2/users/" + url.PathEscape(sub)
	headers := map[string]string{"Authorization": "Bearer " + token}

	var user User
	if err := httpclient.SendJSON(ctx, c.http, "GET", endpoint, headers, nil, &user); err != nil {
		return nil, fmt.Errorf("failed to fetch user %q: %w", sub, err)
	}
	return &user, nil
}
