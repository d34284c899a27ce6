package consumers

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/publicai/gateway/internal/httpclient"
)

// Manager is a portal identity allowed to manage a consumer's keys.
type Manager struct {
	Email string `json:"email"`
	Sub   string `json:"sub,omitempty"`
}

// APIKey is one issued key on a consumer.
type APIKey struct {
	ID        string     `json:"id"`
	Key       string     `json:"key,omitempty"`
	CreatedOn time.Time  `json:"createdOn"`
	ExpiresOn *time.Time `json:"expiresOn,omitempty"`
}

// Consumer is a key-registry entry. The name is a UUID minted at creation
// and doubles as the billing external customer ID.
type Consumer struct {
	Name     string                 `json:"name"`
	Managers []Manager              `json:"managers,omitempty"`
	Tags     map[string]string      `json:"tags,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	APIKeys  []APIKey               `json:"apiKeys,omitempty"`
}

// Plan returns the consumer's plan from metadata, defaulting to "free".
func (c *Consumer) Plan() string {
	if plan, ok := c.Metadata["plan"].(string); ok && plan != "" {
		return plan
	}
	return "free"
}

type consumerList struct {
	Data []Consumer `json:"data"`
}

// Client talks to the hosted API-key registry.
type Client struct {
	baseURL     string
	accountName string
	bucketName  string
	apiKey      string
	http        httpclient.HTTPClient
	logger      *zap.Logger
}

func NewClient(baseURL, accountName, bucketName, apiKey string, http httpclient.HTTPClient, logger *zap.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accountName: accountName,
		bucketName:  bucketName,
		apiKey:      apiKey,
		http:        http,
		logger:      logger,
	}
}

func (c *Client) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

func (c *Client) consumersURL() string {
	return fmt.Sprintf("%s/accounts/%s/key-buckets/%s/consumers", c.baseURL, c.accountName, c.bucketName)
}

// FindBySub looks a consumer up by its subject tag. Returns nil when the
// subject has no consumer yet.
func (c *Client) FindBySub(ctx context.Context, sub string) (*Consumer, error) {
	endpoint := fmt.Sprintf("%s?tag.sub=%s&include-api-keys=true", c.consumersURL(), url.QueryEscape(sub))

	var list consumerList
	if err := httpclient.SendJSON(ctx, c.http, "GET", endpoint, c.headers(), nil, &list); err != nil {
		return nil, fmt.Errorf("failed to look up consumer: %w", err)
	}
	if len(list.Data) == 0 {
		return nil, nil
	}
	return &list.Data[0], nil
}

// FindByEmail looks a consumer up by its email tag.
func (c *Client) FindByEmail(ctx context.Context, email string) (*Consumer, error) {
	endpoint := fmt.Sprintf("%s?tag.email=%s&include-api-keys=true", c.consumersURL(), url.QueryEscape(email))

	var list consumerList
	if err := httpclient.SendJSON(ctx, c.http, "GET", endpoint, c.headers(), nil, &list); err != nil {
		return nil, fmt.Errorf("failed to look up consumer: %w", err)
	}
	if len(list.Data) == 0 {
		return nil, nil
	}
	return &list.Data[0], nil
}

// CreateWithKey registers a consumer with a freshly minted UUID name, an
// initial API key, and the free plan.
func (c *Client) CreateWithKey(ctx context.Context, email, sub string) (*Consumer, error) {
	body := Consumer{
		Name:     uuid.NewString(),
		Managers: []Manager{{Email: email, Sub: sub}},
		Tags:     map[string]string{"sub": sub, "email": email},
		Metadata: map[string]interface{}{"plan": "free"},
	}

	var created Consumer
	endpoint := c.consumersURL() + "?with-api-key=true"
	if err := httpclient.SendJSON(ctx, c.http, "POST", endpoint, c.headers(), body, &created); err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	c.logger.Info("created consumer", zap.String("name", created.Name), zap.String("sub", sub))
	return &created, nil
}

// IssueKey mints an additional API key on an existing consumer.
func (c *Client) IssueKey(ctx context.Context, name string) (*APIKey, error) {
	endpoint := fmt.Sprintf("%s/%s/keys", c.consumersURL(), url.PathEscape(name))

	var key APIKey
	if err := httpclient.SendJSON(ctx, c.http, "POST", endpoint, c.headers(), map[string]interface{}{}, &key); err != nil {
		return nil, fmt.Errorf("failed to issue api key: %w", err)
	}
	return &key, nil
}

// FindByKey resolves the consumer owning an API key. Returns nil for an
// unknown key.
func (c *Client) FindByKey(ctx context.Context, key string) (*Consumer, error) {
	endpoint := fmt.Sprintf("%s?api-key=%s", c.consumersURL(), url.QueryEscape(key))

	var list consumerList
	if err := httpclient.SendJSON(ctx, c.http, "GET", endpoint, c.headers(), nil, &list); err != nil {
		return nil, fmt.Errorf("failed to resolve api key: %w", err)
	}
	if len(list.Data) == 0 {
		return nil, nil
	}
	return &list.Data[0], nil
}

// UpdatePlan patches the consumer's plan metadata.
func (c *Client) UpdatePlan(ctx context.Context, name, plan string) error {
	endpoint := fmt.Sprintf("%s/%s", c.consumersURL(), url.PathEscape(name))
	body := map[string]interface{}{
		"metadata": map[string]interface{}{"plan": plan},
	}
	if err := httpclient.SendJSON(ctx, c.http, "PATCH", endpoint, c.headers(), body, nil); err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	c.logger.Info("updated consumer plan", zap.String("name", name), zap.String("plan", plan))
	return nil
}
