package billing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/publicai/gateway/internal/billing/lago"
	"github.com/publicai/gateway/internal/store"
)

type spendRepo struct {
	mu      sync.Mutex
	spend   map[string]int64
	batches [][]string
}

func (r *spendRepo) InsertRequestLogs(context.Context, []store.RequestLog) error { return nil }

func (r *spendRepo) SpendByInferenceIDs(_ context.Context, ids []string) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, append([]string(nil), ids...))
	out := map[string]int64{}
	for _, id := range ids {
		if cost, ok := r.spend[id]; ok {
			out[id] = cost
		}
	}
	return out, nil
}

func (r *spendRepo) Close() error { return nil }

func newService(t *testing.T, lagoURL string, repo store.Repository) *Service {
	t.Helper()
	client := lago.NewClient(lagoURL, "lago-key", http.DefaultClient, zap.NewNop())
	return NewService(client, repo, zap.NewNop(), 10.0, "pay_as_you_go", "stripe_test", 0.10)
}

func TestEnsureCustomer_ProvisionsOnFirstSight(t *testing.T) {
	var mu sync.Mutex
	calls := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls[r.Method+" "+r.URL.Path]++
		mu.Unlock()

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/customers/ext-1":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"status":404,"error":"Not Found"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/customers":
			assert.Equal(t, "Bearer lago-key", r.Header.Get("Authorization"))
			w.Write([]byte(`{"customer":{"lago_id":"l1","external_id":"ext-1","email":"dev@example.com"}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/wallets":
			w.Write([]byte(`{"wallet":{"lago_id":"w1","external_customer_id":"ext-1"}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/subscriptions":
			w.Write([]byte(`{"subscription":{"lago_id":"s1","plan_code":"pay_as_you_go"}}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	svc := newService(t, srv.URL, &spendRepo{})
	customer, err := svc.EnsureCustomer(context.Background(), "ext-1", "ext-1", "dev@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ext-1", customer.ExternalID)

	assert.Equal(t, 1, calls["POST /customers"])
	assert.Equal(t, 1, calls["POST /wallets"])
	assert.Equal(t, 1, calls["POST /subscriptions"])
}

func TestEnsureCustomer_ExistingCustomerSkipsProvisioning(t *testing.T) {
	var provisioned bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/customers/ext-1" {
			w.Write([]byte(`{"customer":{"lago_id":"l1","external_id":"ext-1"}}`))
			return
		}
		provisioned = true
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	svc := newService(t, srv.URL, &spendRepo{})
	_, err := svc.EnsureCustomer(context.Background(), "ext-1", "ext-1", "dev@example.com")
	require.NoError(t, err)
	assert.False(t, provisioned)
}

func TestProvision_WalletFailureIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/customers":
			w.Write([]byte(`{"customer":{"lago_id":"l1","external_id":"ext-1"}}`))
		case "/wallets":
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"status":422}`))
		case "/subscriptions":
			w.Write([]byte(`{"subscription":{"lago_id":"s1"}}`))
		}
	}))
	defer srv.Close()

	svc := newService(t, srv.URL, &spendRepo{})
	customer, err := svc.Provision(context.Background(), "ext-1", "ext-1", "dev@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ext-1", customer.ExternalID)
}

func TestHasSufficientBalance(t *testing.T) {
	tests := []struct {
		name    string
		wallets string
		want    bool
	}{
		{"above threshold", `{"wallets":[{"lago_id":"w1","ongoing_balance_cents":500}]}`, true},
		{"at threshold", `{"wallets":[{"lago_id":"w1","ongoing_balance_cents":10}]}`, false},
		{"below threshold", `{"wallets":[{"lago_id":"w1","ongoing_balance_cents":-20}]}`, false},
		{"no wallet", `{"wallets":[]}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "ext-1", r.URL.Query().Get("external_customer_id"))
				w.Write([]byte(tt.wallets))
			}))
			defer srv.Close()

			svc := newService(t, srv.URL, &spendRepo{})
			ok, err := svc.HasSufficientBalance(context.Background(), "ext-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestSpendForRequests_BatchesAndZeroFills(t *testing.T) {
	repo := &spendRepo{spend: map[string]int64{"chatcmpl-0": 5_000_000}}
	svc := newService(t, "http://unused", repo)

	ids := make([]string, 120)
	for i := range ids {
		ids[i] = "chatcmpl-" + string(rune('0'+i%10))
	}

	out, err := svc.SpendForRequests(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, out, 120)

	// 120 IDs resolve in three batches of at most 50.
	require.Len(t, repo.batches, 3)
	assert.Len(t, repo.batches[0], 50)
	assert.Len(t, repo.batches[2], 20)

	assert.Equal(t, "chatcmpl-0", out[0].RequestID)
	assert.Equal(t, int64(5_000_000), out[0].CostNanoUSD)
	assert.Equal(t, int64(0), out[1].CostNanoUSD, "unknown IDs reconcile to zero")
}
