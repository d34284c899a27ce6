package pricing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/publicai/gateway/internal/store/cache"
)

const catalogJSON = `{"data":[
	{"model_name":"openai/gpt-oss-120b","model_info":{"input_cost_per_token":0.00000015,"output_cost_per_token":0.0000006,"max_input_tokens":128000,"max_tokens":131072}},
	{"model_name":"swiss-ai/apertus-70b","model_info":{"input_cost_per_token":0.0000004,"output_cost_per_token":0.0000012,"max_tokens":65536}}
]}`

func newTestClient(t *testing.T) (*Client, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/v1/model/info", r.URL.Path)
		assert.Equal(t, "Bearer sk-price", r.Header.Get("Authorization"))
		w.Write([]byte(catalogJSON))
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "sk-price", http.DefaultClient, cache.NewMemoryCache(), zap.NewNop()), &calls
}

func TestModelInfo_ParsesAndCaches(t *testing.T) {
	client, calls := newTestClient(t)

	catalog, err := client.ModelInfo(context.Background())
	require.NoError(t, err)
	require.Len(t, catalog, 2)

	gpt := catalog["openai/gpt-oss-120b"]
	assert.Equal(t, 0.15, gpt.PerMillionInput())
	assert.Equal(t, 0.6, gpt.PerMillionOutput())
	assert.Equal(t, 128000, gpt.ContextLength(), "max_input_tokens wins when present")

	apertus := catalog["swiss-ai/apertus-70b"]
	assert.Equal(t, 65536, apertus.ContextLength(), "max_tokens is the fallback")

	_, err = client.ModelInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, *calls, "second read must come from the cache")
}

func TestCostNanoUSD(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	// 1000 * 0.15e-6 + 500 * 0.6e-6 = 0.00045 USD.
	assert.Equal(t, int64(450_000), client.CostNanoUSD(ctx, "openai/gpt-oss-120b", 1000, 500))
	assert.Equal(t, int64(0), client.CostNanoUSD(ctx, "unknown/model", 1000, 500))
}

func TestCostNanoUSD_ZeroOnCatalogOutage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk-price", http.DefaultClient, cache.NewMemoryCache(), zap.NewNop())
	assert.Equal(t, int64(0), client.CostNanoUSD(context.Background(), "openai/gpt-oss-120b", 10, 10))
}
