package billing

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/publicai/gateway/internal/billing/lago"
	"github.com/publicai/gateway/internal/httpclient"
	"github.com/publicai/gateway/internal/store"
)

const spendBatchSize = 50

// Spend is the reconciled cost for one inference ID.
type Spend struct {
	RequestID   string `json:"requestId"`
	CostNanoUSD int64  `json:"costNanoUsd"`
}

// Service owns customer provisioning, balance checks, and spend
// reconciliation. Lago remains the ledger of record; the request-log store
// only answers per-inference cost queries.
type Service struct {
	lago   *lago.Client
	repo   store.Repository
	logger *zap.Logger

	welcomeCreditsUSD float64
	planCode          string
	providerCode      string
	minBalanceUSD     float64
}

func NewService(client *lago.Client, repo store.Repository, logger *zap.Logger, welcomeCreditsUSD float64, planCode, providerCode string, minBalanceUSD float64) *Service {
	return &Service{
		lago:              client,
		repo:              repo,
		logger:            logger,
		welcomeCreditsUSD: welcomeCreditsUSD,
		planCode:          planCode,
		providerCode:      providerCode,
		minBalanceUSD:     minBalanceUSD,
	}
}

// Lago exposes the underlying client for handlers that pass Lago objects
// through verbatim.
func (s *Service) Lago() *lago.Client {
	return s.lago
}

// EnsureCustomer returns the Lago customer for the external ID, provisioning
// one on first sight.
func (s *Service) EnsureCustomer(ctx context.Context, externalID, name, email string) (*lago.Customer, error) {
	customer, err := s.lago.GetCustomer(ctx, externalID)
	if err == nil {
		return customer, nil
	}
	if httpclient.StatusOf(err) != http.StatusNotFound {
		return nil, err
	}
	return s.Provision(ctx, externalID, name, email)
}

// Provision creates the customer, grants welcome credits, and opens the
// usage subscription. Customer creation failing is fatal; wallet and
// subscription failures are logged and left for a later retry so the
// customer record is never orphaned behind an error.
func (s *Service) Provision(ctx context.Context, externalID, name, email string) (*lago.Customer, error) {
	customer, err := s.lago.CreateCustomer(ctx, externalID, name, email, s.providerCode)
	if err != nil {
		return nil, fmt.Errorf("failed to provision customer: %w", err)
	}
	s.logger.Info("provisioned billing customer", zap.String("external_id", externalID))

	if _, err := s.lago.CreateWallet(ctx, externalID, "Welcome Credits", s.welcomeCreditsUSD); err != nil {
		s.logger.Error("failed to grant welcome credits", zap.String("external_id", externalID), zap.Error(err))
	}
	if _, err := s.lago.CreateSubscription(ctx, externalID, s.planCode); err != nil {
		s.logger.Error("failed to create subscription", zap.String("external_id", externalID), zap.Error(err))
	}

	return customer, nil
}

// Wallet returns the customer's wallet, or nil when none exists.
func (s *Service) Wallet(ctx context.Context, externalID string) (*lago.Wallet, error) {
	return s.lago.FindWalletByCustomer(ctx, externalID)
}

// HasSufficientBalance reports whether the customer may issue billable
// requests. A missing wallet counts as insufficient.
func (s *Service) HasSufficientBalance(ctx context.Context, externalID string) (bool, error) {
	wallet, err := s.lago.FindWalletByCustomer(ctx, externalID)
	if err != nil {
		return false, err
	}
	if wallet == nil {
		return false, nil
	}
	return wallet.OngoingBalanceUSD() > s.minBalanceUSD, nil
}

// SpendForRequests resolves per-inference spend from the request-log store.
// IDs are looked up in fixed-size batches; an unknown ID reconciles to zero
// so the caller always gets one entry per requested ID, in order.
func (s *Service) SpendForRequests(ctx context.Context, ids []string) ([]Spend, error) {
	spend := make(map[string]int64, len(ids))

	for start := 0; start < len(ids); start += spendBatchSize {
		end := start + spendBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch, err := s.repo.SpendByInferenceIDs(ctx, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to resolve spend batch: %w", err)
		}
		for id, cost := range batch {
			spend[id] = cost
		}
	}

	out := make([]Spend, 0, len(ids))
	for _, id := range ids {
		out = append(out, Spend{RequestID: id, CostNanoUSD: spend[id]})
	}
	return out, nil
}
