package lago

import "encoding/json"

// Wallet is the subset of Lago's wallet object the gateway reads.
type Wallet struct {
	LagoID                   string  `json:"lago_id"`
	ExternalCustomerID       string  `json:"external_customer_id"`
	Status                   string  `json:"status"`
	Currency                 string  `json:"currency"`
	BalanceCents             int64   `json:"balance_cents"`
	OngoingBalanceCents      int64   `json:"ongoing_balance_cents"`
	OngoingUsageBalanceCents int64   `json:"ongoing_usage_balance_cents"`
	CreditsBalance           float64 `json:"credits_balance"`
	CreditsOngoingBalance    float64 `json:"credits_ongoing_balance"`
}

// OngoingBalanceUSD is the spend-adjusted balance in dollars.
func (w *Wallet) OngoingBalanceUSD() float64 {
	return float64(w.OngoingBalanceCents) / 100
}

type walletList struct {
	Wallets []Wallet `json:"wallets"`
}

type walletEnvelope struct {
	Wallet Wallet `json:"wallet"`
}

// WalletTransaction is returned raw to portal clients; the gateway only needs
// a handful of fields itself.
type WalletTransaction struct {
	LagoID string `json:"lago_id"`
	Status string `json:"status"`
	Amount string `json:"amount"`

	// Raw preserves the full Lago object for pass-through responses.
	Raw json.RawMessage `json:"-"`
}

func (t *WalletTransaction) UnmarshalJSON(data []byte) error {
	type alias WalletTransaction
	var out alias
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*t = WalletTransaction(out)
	t.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (t WalletTransaction) MarshalJSON() ([]byte, error) {
	if len(t.Raw) > 0 {
		return t.Raw, nil
	}
	type alias WalletTransaction
	return json.Marshal(alias(t))
}

type walletTransactionList struct {
	WalletTransactions []WalletTransaction `json:"wallet_transactions"`
}

// BillingConfiguration links a Lago customer to its payment provider account.
type BillingConfiguration struct {
	PaymentProvider     string `json:"payment_provider"`
	PaymentProviderCode string `json:"payment_provider_code"`
	ProviderCustomerID  string `json:"provider_customer_id"`
	SyncWithProvider    bool   `json:"sync_with_provider"`
}

// Customer is the subset of Lago's customer object the gateway reads.
type Customer struct {
	LagoID               string               `json:"lago_id"`
	ExternalID           string               `json:"external_id"`
	Name                 string               `json:"name"`
	Email                string               `json:"email"`
	BillingConfiguration BillingConfiguration `json:"billing_configuration"`
}

type customerEnvelope struct {
	Customer Customer `json:"customer"`
}

type Subscription struct {
	LagoID     string `json:"lago_id"`
	ExternalID string `json:"external_id"`
	PlanCode   string `json:"plan_code"`
	Status     string `json:"status"`
}

type subscriptionEnvelope struct {
	Subscription Subscription `json:"subscription"`
}
