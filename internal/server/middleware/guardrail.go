package middleware

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/publicai/gateway/internal/guardrails/bedrock"
	"github.com/publicai/gateway/pkg/api"
)

// Guardrail screens the latest user message before it reaches a provider.
// The body is restored for the handler; a malformed body passes through so
// the handler can report the real parse error.
func Guardrail(svc *bedrock.Service, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !svc.Enabled() || c.Request.Body == nil {
			c.Next()
			return
		}

		raw, err := io.ReadAll(c.Request.Body)
		c.Request.Body.Close()
		if err != nil {
			c.Error(api.InternalError(err))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(raw))

		text := latestUserText(raw)
		if text == "" {
			c.Next()
			return
		}

		allowed, err := svc.Check(c.Request.Context(), text)
		if err != nil {
			// Screening outages do not block inference.
			logger.Error("guardrail check failed", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(400,
				api.ContentFilterError("Your message was blocked by our content policy.").Envelope())
			return
		}

		c.Next()
	}
}

func latestUserText(raw []byte) string {
	var req api.ChatCompletionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return ""
	}
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == api.RoleUser {
			return req.Messages[i].Content.PlainText()
		}
	}
	return ""
}
