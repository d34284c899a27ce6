package routing

import (
	"encoding/json"
	"testing"

	"github.com/publicai/gateway/internal/config"
	"github.com/publicai/gateway/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testProviders() []config.ProviderConfig {
	return []config.ProviderConfig{
		{
			Key:     "sealion",
			Name:    "AI Singapore",
			BaseURL: "https://api.sea-lion.ai/v1/chat/completions",
			APIKey:  "sk-sealion",
			Compute: config.ComputeConfig{Location: "Singapore", Provider: "AI Singapore", Sponsor: "AI Singapore"},
		},
		{
			Key:     "openrouter",
			Name:    "OpenRouter",
			BaseURL: "https://openrouter.ai/api/v1/chat/completions",
			APIKey:  "sk-or",
			Compute: config.ComputeConfig{Location: "United States", Provider: "OpenRouter", Sponsor: "OpenRouter"},
		},
		{
			Key:               "together",
			Name:              "Together AI",
			BaseURL:           "https://api.together.xyz/v1/chat/completions",
			APIKey:            "sk-tg",
			RequiresMaxTokens: true,
			ModelRewrites:     map[string]string{"openai/gpt-oss-120b": "openai/gpt-oss-120B"},
			Compute:           config.ComputeConfig{Location: "United States", Provider: "Together AI", Sponsor: "PublicAI"},
		},
	}
}

func testModels() []config.ModelConfig {
	return []config.ModelConfig{
		{Name: "aisingapore/Gemma-SEA-LION-v3-9B-IT", Strategy: "single", Providers: []string{"sealion"}},
		{Name: "openai/gpt-oss-120b", Strategy: "random", Providers: []string{"openrouter", "together"}},
	}
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	table, err := NewTable(testProviders(), testModels())
	require.NoError(t, err)
	return NewRouter(table, zap.NewNop())
}

func TestNewTable_UnknownProviderKey(t *testing.T) {
	_, err := NewTable(testProviders(), []config.ModelConfig{
		{Name: "m", Strategy: "single", Providers: []string{"missing"}},
	})
	assert.ErrorContains(t, err, "unknown provider")
}

func TestNewTable_UnknownStrategy(t *testing.T) {
	_, err := NewTable(testProviders(), []config.ModelConfig{
		{Name: "m", Strategy: "sticky", Providers: []string{"sealion"}},
	})
	assert.ErrorContains(t, err, "unknown load-balancing strategy")
}

func TestNewTable_SingleWithMultipleProviders(t *testing.T) {
	_, err := NewTable(testProviders(), []config.ModelConfig{
		{Name: "m", Strategy: "single", Providers: []string{"sealion", "together"}},
	})
	assert.Error(t, err)
}

func TestSelect_UnknownModel(t *testing.T) {
	r := newTestRouter(t)
	_, err := r.Select("openai/gpt-5")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestSelect_SingleIsDeterministic(t *testing.T) {
	r := newTestRouter(t)
	for i := 0; i < 50; i++ {
		sel, err := r.Select("aisingapore/Gemma-SEA-LION-v3-9B-IT")
		require.NoError(t, err)
		assert.Equal(t, "sealion", sel.Provider.Key)
		assert.False(t, sel.Balanced)
		assert.Equal(t, StrategySingle, sel.Strategy)
	}
}

func TestSelect_RandomStaysInCandidateSet(t *testing.T) {
	r := newTestRouter(t)
	for i := 0; i < 200; i++ {
		sel, err := r.Select("openai/gpt-oss-120b")
		require.NoError(t, err)
		assert.Contains(t, []string{"openrouter", "together"}, sel.Provider.Key)
		assert.True(t, sel.Balanced)
	}
}

func TestSelect_RandomIsRoughlyUniform(t *testing.T) {
	r := newTestRouter(t)

	const trials = 2000
	counts := map[string]int{}
	for i := 0; i < trials; i++ {
		sel, err := r.Select("openai/gpt-oss-120b")
		require.NoError(t, err)
		counts[sel.Provider.Key]++
	}

	// Expect ~1000 each; 4 sigma for a fair coin over 2000 trials is ~90.
	assert.InDelta(t, trials/2, counts["openrouter"], 150)
	assert.InDelta(t, trials/2, counts["together"], 150)
}

func decodeRequest(t *testing.T, body string) *api.ChatCompletionRequest {
	t.Helper()
	var req api.ChatCompletionRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	return &req
}

func (r *Router) mustSelect(t *testing.T, model string) Selection {
	t.Helper()
	sel, err := r.Select(model)
	require.NoError(t, err)
	return sel
}

func TestRewrite_InjectsDisclosureForNewConversation(t *testing.T) {
	r := newTestRouter(t)
	req := decodeRequest(t, `{"model":"aisingapore/Gemma-SEA-LION-v3-9B-IT","messages":[{"role":"user","content":"hi"}]}`)

	sel := r.mustSelect(t, req.Model)
	require.NoError(t, r.Rewrite(req, sel))

	require.Len(t, req.Messages, 2)
	assert.Equal(t, api.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content.Text, "hosted in Singapore, provided by AI Singapore.")
	assert.NotContains(t, req.Messages[0].Content.Text, "sponsored")
}

func TestRewrite_AppendsToExistingSystemMessage(t *testing.T) {
	r := newTestRouter(t)
	req := decodeRequest(t, `{"model":"aisingapore/Gemma-SEA-LION-v3-9B-IT","messages":[{"role":"system","content":"Be terse."},{"role":"user","content":"hi"}]}`)

	sel := r.mustSelect(t, req.Model)
	require.NoError(t, r.Rewrite(req, sel))

	require.Len(t, req.Messages, 2)
	assert.Equal(t, "Be terse.\n\nYou are running on compute infrastructure hosted in Singapore, provided by AI Singapore. "+
		"Please mention this information naturally in your first response to new conversations.",
		req.Messages[0].Content.Text)
}

func TestRewrite_SponsorClauseWhenSponsorDiffers(t *testing.T) {
	r := newTestRouter(t)
	r.pick = func(int) int { return 1 } // force Together

	req := decodeRequest(t, `{"model":"openai/gpt-oss-120b","messages":[{"role":"user","content":"hi"}]}`)
	sel := r.mustSelect(t, req.Model)
	require.NoError(t, r.Rewrite(req, sel))

	assert.Contains(t, req.Messages[0].Content.Text, "provided by Together AI, sponsored by PublicAI.")
}

func TestRewrite_SkipsDisclosureMidConversation(t *testing.T) {
	r := newTestRouter(t)
	body := `{"model":"aisingapore/Gemma-SEA-LION-v3-9B-IT","messages":[{"role":"user","content":"hi"},{"role":"assistant","content":"hello!"},{"role":"user","content":"more"}]}`
	req := decodeRequest(t, body)

	before, err := json.Marshal(req.Messages)
	require.NoError(t, err)

	sel := r.mustSelect(t, req.Model)
	require.NoError(t, r.Rewrite(req, sel))

	after, err := json.Marshal(req.Messages)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after), "mid-conversation messages must pass through untouched")
}

func TestRewrite_ModelRenameAndMaxTokensDefault(t *testing.T) {
	r := newTestRouter(t)
	r.pick = func(int) int { return 1 } // force Together

	req := decodeRequest(t, `{"model":"openai/gpt-oss-120b","messages":[{"role":"user","content":"hi"}],"temperature":0.2}`)
	sel := r.mustSelect(t, req.Model)
	require.NoError(t, r.Rewrite(req, sel))

	assert.Equal(t, "openai/gpt-oss-120B", req.Model)
	require.NotNil(t, req.MaxTokens)
	assert.Equal(t, 1000, *req.MaxTokens)

	// Passthrough fields survive the round trip.
	out, err := json.Marshal(req)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"temperature":0.2`)
}

func TestRewrite_KeepsExplicitMaxTokens(t *testing.T) {
	r := newTestRouter(t)
	r.pick = func(int) int { return 1 }

	req := decodeRequest(t, `{"model":"openai/gpt-oss-120b","messages":[{"role":"user","content":"hi"}],"max_tokens":64}`)
	sel := r.mustSelect(t, req.Model)
	require.NoError(t, r.Rewrite(req, sel))

	require.NotNil(t, req.MaxTokens)
	assert.Equal(t, 64, *req.MaxTokens)
}

func TestModelNames_SortedAndComplete(t *testing.T) {
	r := newTestRouter(t)
	assert.Equal(t, []string{"aisingapore/Gemma-SEA-LION-v3-9B-IT", "openai/gpt-oss-120b"}, r.ModelNames())
}
