package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/publicai/gateway/internal/httpclient"
	"github.com/publicai/gateway/internal/store/cache"
	"github.com/publicai/gateway/pkg/api"
)

const (
	modelInfoCacheKey = "pricing:model_info"
	modelInfoCacheTTL = 5 * time.Minute
)

// ModelInfo is one entry from the upstream pricing catalog.
type ModelInfo struct {
	ModelName string `json:"model_name"`
	Info      struct {
		InputCostPerToken  float64 `json:"input_cost_per_token"`
		OutputCostPerToken float64 `json:"output_cost_per_token"`
		MaxInputTokens     int     `json:"max_input_tokens"`
		MaxTokens          int     `json:"max_tokens"`
	} `json:"model_info"`
}

// ContextLength prefers the input-token limit over the combined one.
func (m *ModelInfo) ContextLength() int {
	if m.Info.MaxInputTokens > 0 {
		return m.Info.MaxInputTokens
	}
	return m.Info.MaxTokens
}

// PerMillionInput is the input price per million tokens, rounded to six
// decimals.
func (m *ModelInfo) PerMillionInput() float64 {
	return roundTo(m.Info.InputCostPerToken*1_000_000, 6)
}

func (m *ModelInfo) PerMillionOutput() float64 {
	return roundTo(m.Info.OutputCostPerToken*1_000_000, 6)
}

func roundTo(v float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(v*factor) / factor
}

// Client reads the model catalog and pricing from the upstream inference
// platform, with a short shared cache in front.
type Client struct {
	baseURL string
	apiKey  string
	http    httpclient.HTTPClient
	cache   cache.CacheService
	logger  *zap.Logger
}

func NewClient(baseURL, apiKey string, http httpclient.HTTPClient, cacheSvc cache.CacheService, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    http,
		cache:   cacheSvc,
		logger:  logger,
	}
}

func (c *Client) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

// ModelInfoRaw returns the raw /v1/model/info document for pass-through
// responses.
func (c *Client) ModelInfoRaw(ctx context.Context) (json.RawMessage, error) {
	if cached, err := c.cache.Get(ctx, modelInfoCacheKey); err == nil {
		return json.RawMessage(cached), nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("pricing cache read failed", zap.Error(err))
	}

	var raw json.RawMessage
	if err := httpclient.SendJSON(ctx, c.http, "GET", c.baseURL+"/v1/model/info", c.headers(), nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch model info: %w", err)
	}

	if err := c.cache.Set(ctx, modelInfoCacheKey, string(raw), modelInfoCacheTTL); err != nil {
		c.logger.Warn("pricing cache write failed", zap.Error(err))
	}
	return raw, nil
}

// ModelInfo returns the parsed pricing catalog keyed by model name.
func (c *Client) ModelInfo(ctx context.Context) (map[string]ModelInfo, error) {
	raw, err := c.ModelInfoRaw(ctx)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Data []ModelInfo `json:"data"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse model info: %w", err)
	}

	out := make(map[string]ModelInfo, len(doc.Data))
	for _, m := range doc.Data {
		out[m.ModelName] = m
	}
	return out, nil
}

// ListModels fetches the upstream model catalog.
func (c *Client) ListModels(ctx context.Context) (*api.ModelList, error) {
	var list api.ModelList
	if err := httpclient.SendJSON(ctx, c.http, "GET", c.baseURL+"/v1/models", c.headers(), nil, &list); err != nil {
		return nil, fmt.Errorf("failed to fetch models: %w", err)
	}
	return &list, nil
}

// CostNanoUSD prices a completed request in nano-USD. Unknown models cost
// zero.
func (c *Client) CostNanoUSD(ctx context.Context, model string, promptTokens, completionTokens int64) int64 {
	catalog, err := c.ModelInfo(ctx)
	if err != nil {
		c.logger.Warn("cost lookup failed", zap.String("model", model), zap.Error(err))
		return 0
	}
	info, ok := catalog[model]
	if !ok {
		return 0
	}

	cost := float64(promptTokens)*info.Info.InputCostPerToken + float64(completionTokens)*info.Info.OutputCostPerToken
	return int64(math.Round(cost * 1e9))
}
