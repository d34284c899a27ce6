package store

import (
	"context"
	"time"
)

// RequestLog is one completed gateway request. Cost is recorded in nano-USD
// (1e-9 dollars) so per-token prices survive integer arithmetic.
type RequestLog struct {
	ID               string    `db:"id"`
	InferenceID      string    `db:"inference_id"`
	ConsumerName     string    `db:"consumer_name"`
	Model            string    `db:"model"`
	Provider         string    `db:"provider"`
	StatusCode       int       `db:"status_code"`
	Streamed         bool      `db:"streamed"`
	PromptTokens     int64     `db:"prompt_tokens"`
	CompletionTokens int64     `db:"completion_tokens"`
	CostNanoUSD      int64     `db:"cost_nano_usd"`
	LatencyMS        int64     `db:"latency_ms"`
	CreatedAt        time.Time `db:"created_at"`
}

// Repository persists gateway telemetry and answers spend queries against it.
type Repository interface {
	InsertRequestLogs(ctx context.Context, logs []RequestLog) error
	// SpendByInferenceIDs returns the total cost in nano-USD per inference ID.
	// Unknown IDs are simply absent from the result.
	SpendByInferenceIDs(ctx context.Context, ids []string) (map[string]int64, error)
	Close() error
}
