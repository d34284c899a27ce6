package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/publicai/gateway/internal/store"
)

type fakeRepo struct {
	mu   sync.Mutex
	logs []store.RequestLog
}

func (f *fakeRepo) InsertRequestLogs(_ context.Context, logs []store.RequestLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, logs...)
	return nil
}

func (f *fakeRepo) SpendByInferenceIDs(context.Context, []string) (map[string]int64, error) {
	return nil, nil
}

func (f *fakeRepo) Close() error { return nil }

func (f *fakeRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logs)
}

func TestIngestor_FlushesOnStop(t *testing.T) {
	repo := &fakeRepo{}
	ing := NewIngestor(zap.NewNop(), repo)
	ing.Start(context.Background())

	ing.Log(store.RequestLog{ID: "r1", InferenceID: "chatcmpl-1"})
	ing.Log(store.RequestLog{ID: "r2", InferenceID: "chatcmpl-2"})
	ing.Stop()

	require.Eventually(t, func() bool { return repo.count() == 2 }, time.Second, 10*time.Millisecond)
}

func TestIngestor_FlushesFullBatch(t *testing.T) {
	repo := &fakeRepo{}
	ing := NewIngestor(zap.NewNop(), repo).(*ingestor)
	ing.batchSize = 3
	ing.Start(context.Background())
	defer ing.Stop()

	for i := 0; i < 3; i++ {
		ing.Log(store.RequestLog{ID: "r"})
	}

	assert.Eventually(t, func() bool { return repo.count() == 3 }, time.Second, 10*time.Millisecond)
}
