package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/publicai/gateway/internal/httpclient"
)

// PaymentMethod is the subset of Stripe's payment_method object the gateway
// reads. Raw preserves the full object for pass-through responses.
type PaymentMethod struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Type     string `json:"type"`

	Raw json.RawMessage `json:"-"`
}

func (m *PaymentMethod) UnmarshalJSON(data []byte) error {
	type alias PaymentMethod
	var out alias
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*m = PaymentMethod(out)
	m.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (m PaymentMethod) MarshalJSON() ([]byte, error) {
	if len(m.Raw) > 0 {
		return m.Raw, nil
	}
	type alias PaymentMethod
	return json.Marshal(alias(m))
}

// Client is a minimal Stripe API client covering payment-method management.
type Client struct {
	baseURL string
	apiKey  string
	http    httpclient.HTTPClient
}

func NewClient(baseURL, apiKey string, http httpclient.HTTPClient) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, http: http}
}

func (c *Client) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

// ListCardPaymentMethods returns the customer's card payment methods.
func (c *Client) ListCardPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error) {
	endpoint := fmt.Sprintf("%s/v1/payment_methods?customer=%s&type=card", c.baseURL, url.QueryEscape(customerID))

	var out struct {
		Data []PaymentMethod `json:"data"`
	}
	if err := httpclient.SendJSON(ctx, c.http, "GET", endpoint, c.headers(), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}
	return out.Data, nil
}

// GetPaymentMethod fetches one payment method by ID.
func (c *Client) GetPaymentMethod(ctx context.Context, id string) (*PaymentMethod, error) {
	endpoint := fmt.Sprintf("%s/v1/payment_methods/%s", c.baseURL, url.PathEscape(id))

	var pm PaymentMethod
	if err := httpclient.SendJSON(ctx, c.http, "GET", endpoint, c.headers(), nil, &pm); err != nil {
		return nil, fmt.Errorf("failed to fetch payment method: %w", err)
	}
	return &pm, nil
}

// DetachPaymentMethod removes a payment method from its customer and returns
// the detached object.
func (c *Client) DetachPaymentMethod(ctx context.Context, id string) (*PaymentMethod, error) {
	endpoint := fmt.Sprintf("%s/v1/payment_methods/%s/detach", c.baseURL, url.PathEscape(id))

	var pm PaymentMethod
	if err := httpclient.SendForm(ctx, c.http, "POST", endpoint, c.headers(), url.Values{}, &pm); err != nil {
		return nil, fmt.Errorf("failed to detach payment method: %w", err)
	}
	return &pm, nil
}
