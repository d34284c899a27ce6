package bedrock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/publicai/gateway/internal/httpclient"
)

const service = "bedrock"

// Service screens user input through an AWS Bedrock guardrail. An empty
// guardrail ID disables screening entirely.
type Service struct {
	guardrailID string
	version     string
	region      string
	creds       Credentials
	http        httpclient.HTTPClient
	logger      *zap.Logger

	// endpoint overrides the AWS host in tests.
	endpoint string
	now      func() time.Time
}

func NewService(guardrailID, version, region string, creds Credentials, client httpclient.HTTPClient, logger *zap.Logger) *Service {
	return &Service{
		guardrailID: guardrailID,
		version:     version,
		region:      region,
		creds:       creds,
		http:        client,
		logger:      logger,
		now:         time.Now,
	}
}

// Enabled reports whether a guardrail is configured.
func (s *Service) Enabled() bool {
	return s.guardrailID != ""
}

type applyRequest struct {
	Source  string         `json:"source"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Text textBlock `json:"text"`
}

type textBlock struct {
	Text string `json:"text"`
}

type applyResponse struct {
	Action string `json:"action"`
}

// Check screens text as model INPUT. It returns true when the guardrail
// takes no action. Unconfigured guardrails and empty text pass without a
// network call.
func (s *Service) Check(ctx context.Context, text string) (bool, error) {
	if !s.Enabled() || text == "" {
		return true, nil
	}

	body, err := json.Marshal(applyRequest{
		Source:  "INPUT",
		Content: []contentBlock{{Text: textBlock{Text: text}}},
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal guardrail request: %w", err)
	}

	host := s.endpoint
	if host == "" {
		host = fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", s.region)
	}
	url := fmt.Sprintf("%s/guardrail/%s/version/%s/apply", host, s.guardrailID, s.version)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to build guardrail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	sign(req, body, s.creds, s.region, service, s.now())

	resp, err := s.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("guardrail request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return false, &httpclient.UpstreamError{StatusCode: resp.StatusCode, Body: respBody, URL: url}
	}

	var out applyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("failed to decode guardrail response: %w", err)
	}

	allowed := out.Action == "NONE"
	if !allowed {
		s.logger.Warn("guardrail intervened", zap.String("action", out.Action))
	}
	return allowed, nil
}
