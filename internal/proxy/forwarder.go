package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/publicai/gateway/internal/routing"
	"go.uber.org/zap"
)

// Diagnostic headers describing the routing decision.
const (
	HeaderModelRequested      = "X-Model-Requested"
	HeaderTargetURL           = "X-Target-URL"
	HeaderSelectedProvider    = "X-Selected-Provider"
	HeaderLoadBalancer        = "X-Load-Balancer"
	HeaderComputeLocation     = "X-Compute-Location"
	HeaderComputeSponsor      = "X-Compute-Sponsor"
	HeaderLoadBalanced        = "X-Load-Balanced"
	HeaderSelectedProviderKey = "X-Selected-Provider-Key"
	HeaderBalanceStrategy     = "X-Load-Balance-Strategy"
)

const loadBalancerName = "publicai-gateway"

// Forwarder ships rewritten chat-completion bodies to the selected provider.
// It never retries and never fails over: a downstream failure is the caller's
// response.
type Forwarder struct {
	client *http.Client
	logger *zap.Logger
}

func NewForwarder(client *http.Client, logger *zap.Logger) *Forwarder {
	return &Forwarder{client: client, logger: logger}
}

// Forward POSTs body to the provider and returns the raw response. The caller
// owns the response body.
func (f *Forwarder) Forward(ctx context.Context, sel routing.Selection, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sel.Provider.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build provider request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+sel.Provider.APIKey)

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Error("provider request failed",
			zap.String("provider", sel.Provider.Key),
			zap.String("url", sel.Provider.BaseURL),
			zap.Error(err),
		)
		return nil, err
	}

	if resp.StatusCode >= 400 {
		// Pass the response through as-is; log a bounded preview of the body
		// for operators without consuming the caller's copy.
		preview := previewBody(resp, 2048)
		f.logger.Error("provider returned error response",
			zap.String("provider", sel.Provider.Key),
			zap.Int("status", resp.StatusCode),
			zap.String("body", preview),
		)
	}

	return resp, nil
}

// Diagnostics stamps the routing-decision headers onto h.
func Diagnostics(h http.Header, sel routing.Selection) {
	h.Set(HeaderModelRequested, sel.Model)
	h.Set(HeaderTargetURL, sel.Provider.BaseURL)
	h.Set(HeaderSelectedProvider, sel.Provider.Name)
	h.Set(HeaderLoadBalancer, loadBalancerName)
	h.Set(HeaderComputeLocation, sel.Provider.Compute.Location)
	h.Set(HeaderComputeSponsor, sel.Provider.Compute.Sponsor)

	if sel.Balanced {
		h.Set(HeaderLoadBalanced, "true")
		h.Set(HeaderSelectedProviderKey, sel.Provider.Key)
		h.Set(HeaderBalanceStrategy, sel.Strategy.String())
	} else {
		h.Set(HeaderLoadBalanced, "false")
	}
}

func previewBody(resp *http.Response, limit int) string {
	if resp.Body == nil {
		return ""
	}
	peeked, err := io.ReadAll(io.LimitReader(resp.Body, int64(limit)))
	if err != nil {
		return ""
	}
	rest := resp.Body
	resp.Body = &prefixedBody{prefix: bytes.NewReader(peeked), rest: rest}
	return string(peeked)
}

// prefixedBody replays already-read bytes ahead of the remaining stream.
type prefixedBody struct {
	prefix *bytes.Reader
	rest   io.ReadCloser
}

func (b *prefixedBody) Read(p []byte) (int, error) {
	if b.prefix.Len() > 0 {
		return b.prefix.Read(p)
	}
	return b.rest.Read(p)
}

func (b *prefixedBody) Close() error {
	return b.rest.Close()
}
