package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/publicai/gateway/internal/store"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(InMemoryDSN(t.Name()), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func logFixture(inferenceID string, costNano int64) store.RequestLog {
	return store.RequestLog{
		ID:               uuid.NewString(),
		InferenceID:      inferenceID,
		ConsumerName:     "b7f3d9a2-1c4e-4f8a-9b6d-2e5a7c8d9f01",
		Model:            "openai/gpt-oss-120b",
		Provider:         "together",
		StatusCode:       200,
		PromptTokens:     120,
		CompletionTokens: 480,
		CostNanoUSD:      costNano,
		LatencyMS:        850,
		CreatedAt:        time.Now().UTC(),
	}
}

func TestSpendByInferenceIDs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertRequestLogs(ctx, []store.RequestLog{
		logFixture("chatcmpl-a", 125_000_000),
		logFixture("chatcmpl-b", 40_000_000),
	}))

	spend, err := repo.SpendByInferenceIDs(ctx, []string{"chatcmpl-a", "chatcmpl-b", "chatcmpl-missing"})
	require.NoError(t, err)

	assert.Equal(t, int64(125_000_000), spend["chatcmpl-a"])
	assert.Equal(t, int64(40_000_000), spend["chatcmpl-b"])
	_, known := spend["chatcmpl-missing"]
	assert.False(t, known, "unknown IDs must be absent, not zero rows")
}

func TestSpendByInferenceIDs_SumsRepeatedIDs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertRequestLogs(ctx, []store.RequestLog{
		logFixture("chatcmpl-a", 10_000_000),
		logFixture("chatcmpl-a", 15_000_000),
	}))

	spend, err := repo.SpendByInferenceIDs(ctx, []string{"chatcmpl-a"})
	require.NoError(t, err)
	assert.Equal(t, int64(25_000_000), spend["chatcmpl-a"])
}

func TestSpendByInferenceIDs_EmptyInput(t *testing.T) {
	repo := newTestRepo(t)

	spend, err := repo.SpendByInferenceIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, spend)
}
