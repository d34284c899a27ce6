package lago

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/publicai/gateway/internal/httpclient"
	"go.uber.org/zap"
)

// Client talks to the Lago billing API. The base URL includes the /api/v1
// prefix.
type Client struct {
	baseURL string
	apiKey  string
	http    httpclient.HTTPClient
	logger  *zap.Logger
}

func NewClient(baseURL, apiKey string, http httpclient.HTTPClient, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    http,
		logger:  logger,
	}
}

func (c *Client) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

// FindWalletByCustomer returns the customer's active wallet, or nil when the
// customer has none.
func (c *Client) FindWalletByCustomer(ctx context.Context, externalCustomerID string) (*Wallet, error) {
	endpoint := fmt.Sprintf("%s/wallets?external_customer_id=%s", c.baseURL, url.QueryEscape(externalCustomerID))

	var list walletList
	if err := httpclient.SendJSON(ctx, c.http, "GET", endpoint, c.headers(), nil, &list); err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	if len(list.Wallets) == 0 {
		return nil, nil
	}
	return &list.Wallets[0], nil
}

// CreateWallet opens a wallet with granted welcome credits at a 1:1 USD rate.
func (c *Client) CreateWallet(ctx context.Context, externalCustomerID, name string, grantedCredits float64) (*Wallet, error) {
	body := map[string]interface{}{
		"wallet": map[string]interface{}{
			"external_customer_id": externalCustomerID,
			"name":                 name,
			"currency":             "USD",
			"rate_amount":          "1.0",
			"granted_credits":      fmt.Sprintf("%.2f", grantedCredits),
		},
	}

	var env walletEnvelope
	if err := httpclient.SendJSON(ctx, c.http, "POST", c.baseURL+"/wallets", c.headers(), body, &env); err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return &env.Wallet, nil
}

// TopUpWallet buys paid credits on an existing wallet.
func (c *Client) TopUpWallet(ctx context.Context, walletID string, amountUSD float64) (*WalletTransaction, error) {
	body := map[string]interface{}{
		"wallet_transaction": map[string]interface{}{
			"wallet_id":       walletID,
			"paid_credits":    fmt.Sprintf("%.2f", amountUSD),
			"granted_credits": "0.0",
			"name":            "Prepaid Top-up",
		},
	}

	var list walletTransactionList
	if err := httpclient.SendJSON(ctx, c.http, "POST", c.baseURL+"/wallet_transactions", c.headers(), body, &list); err != nil {
		return nil, fmt.Errorf("failed to create wallet transaction: %w", err)
	}
	if len(list.WalletTransactions) == 0 {
		return nil, fmt.Errorf("wallet transaction response was empty")
	}
	return &list.WalletTransactions[0], nil
}

// ListWalletTransactions returns one page of transactions, newest first.
func (c *Client) ListWalletTransactions(ctx context.Context, walletID string, perPage, page int) ([]WalletTransaction, error) {
	endpoint := fmt.Sprintf("%s/wallets/%s/wallet_transactions?per_page=%d&page=%d",
		c.baseURL, url.PathEscape(walletID), perPage, page)

	var list walletTransactionList
	if err := httpclient.SendJSON(ctx, c.http, "GET", endpoint, c.headers(), nil, &list); err != nil {
		return nil, fmt.Errorf("failed to list wallet transactions: %w", err)
	}
	return list.WalletTransactions, nil
}

// PaymentURL returns the hosted payment page for a pending transaction.
func (c *Client) PaymentURL(ctx context.Context, transactionID string) (string, error) {
	endpoint := fmt.Sprintf("%s/wallet_transactions/%s/payment_url", c.baseURL, url.PathEscape(transactionID))

	var out struct {
		WalletTransactionPaymentDetails struct {
			PaymentURL string `json:"payment_url"`
		} `json:"wallet_transaction_payment_details"`
	}
	if err := httpclient.SendJSON(ctx, c.http, "POST", endpoint, c.headers(), nil, &out); err != nil {
		return "", fmt.Errorf("failed to generate payment url: %w", err)
	}
	return out.WalletTransactionPaymentDetails.PaymentURL, nil
}

// CheckoutURL returns the hosted page where a customer registers a payment
// method.
func (c *Client) CheckoutURL(ctx context.Context, externalCustomerID string) (string, error) {
	endpoint := fmt.Sprintf("%s/customers/%s/checkout_url", c.baseURL, url.PathEscape(externalCustomerID))

	var out struct {
		Customer struct {
			CheckoutURL string `json:"checkout_url"`
		} `json:"customer"`
	}
	if err := httpclient.SendJSON(ctx, c.http, "POST", endpoint, c.headers(), nil, &out); err != nil {
		return "", fmt.Errorf("failed to generate checkout url: %w", err)
	}
	return out.Customer.CheckoutURL, nil
}

// GetCustomer fetches a customer by external ID.
func (c *Client) GetCustomer(ctx context.Context, externalCustomerID string) (*Customer, error) {
	endpoint := fmt.Sprintf("%s/customers/%s", c.baseURL, url.PathEscape(externalCustomerID))

	var env customerEnvelope
	if err := httpclient.SendJSON(ctx, c.http, "GET", endpoint, c.headers(), nil, &env); err != nil {
		return nil, fmt.Errorf("failed to fetch customer: %w", err)
	}
	return &env.Customer, nil
}

// CreateCustomer registers a customer synced to the payment provider.
func (c *Client) CreateCustomer(ctx context.Context, externalID, name, email, providerCode string) (*Customer, error) {
	body := map[string]interface{}{
		"customer": map[string]interface{}{
			"external_id": externalID,
			"name":        name,
			"email":       email,
			"currency":    "USD",
			"billing_configuration": map[string]interface{}{
				"payment_provider":      "stripe",
				"payment_provider_code": providerCode,
				"sync_with_provider":    true,
			},
		},
	}

	var env customerEnvelope
	if err := httpclient.SendJSON(ctx, c.http, "POST", c.baseURL+"/customers", c.headers(), body, &env); err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	return &env.Customer, nil
}

// CreateSubscription subscribes the customer to a plan.
func (c *Client) CreateSubscription(ctx context.Context, externalCustomerID, planCode string) (*Subscription, error) {
	body := map[string]interface{}{
		"subscription": map[string]interface{}{
			"external_customer_id": externalCustomerID,
			"external_id":          externalCustomerID + "-" + planCode,
			"plan_code":            planCode,
		},
	}

	var env subscriptionEnvelope
	if err := httpclient.SendJSON(ctx, c.http, "POST", c.baseURL+"/subscriptions", c.headers(), body, &env); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	return &env.Subscription, nil
}
