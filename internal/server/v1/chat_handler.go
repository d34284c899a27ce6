package v1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/publicai/gateway/internal/analytics"
	"github.com/publicai/gateway/internal/pricing"
	"github.com/publicai/gateway/internal/proxy"
	"github.com/publicai/gateway/internal/routing"
	"github.com/publicai/gateway/internal/server/middleware"
	"github.com/publicai/gateway/internal/store"
	"github.com/publicai/gateway/pkg/api"
)

// ChatHandler proxies chat completions: route, rewrite, forward, and surface
// the completion ID without altering the provider's bytes.
type ChatHandler struct {
	router    *routing.Router
	forwarder *proxy.Forwarder
	extractor *proxy.Extractor
	ingestor  analytics.Ingestor
	pricing   *pricing.Client
	logger    *zap.Logger
}

func NewChatHandler(router *routing.Router, forwarder *proxy.Forwarder, extractor *proxy.Extractor, ingestor analytics.Ingestor, pricingClient *pricing.Client, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		router:    router,
		forwarder: forwarder,
		extractor: extractor,
		ingestor:  ingestor,
		pricing:   pricingClient,
		logger:    logger,
	}
}

// The chat route keeps the flat error bodies its clients already parse,
// instead of the portal envelope.
func (h *ChatHandler) CreateCompletion(c *gin.Context) {
	start := time.Now()

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Error("failed to read request body", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	var req api.ChatCompletionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON in request body"})
		return
	}
	if req.Model == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Model not specified"})
		return
	}

	sel, err := h.router.Select(req.Model)
	if err != nil {
		if errors.Is(err, routing.ErrUnknownModel) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":            "Unsupported model",
				"model":            req.Model,
				"supported_models": h.router.ModelNames(),
			})
			return
		}
		h.logger.Error("selection failed", zap.String("model", req.Model), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if err := h.router.Rewrite(&req, sel); err != nil {
		h.logger.Error("request rewrite failed", zap.String("model", req.Model), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	body, err := json.Marshal(req)
	if err != nil {
		h.logger.Error("failed to marshal rewritten request", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	resp, err := h.forwarder.Forward(c.Request.Context(), sel, body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	defer resp.Body.Close()

	resp, err = h.extractor.Augment(resp)
	if err != nil {
		h.logger.Error("failed to process provider response", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Internal server error"})
		return
	}

	proxy.Diagnostics(c.Writer.Header(), sel)
	for k, vals := range resp.Header {
		c.Writer.Header()[k] = vals
	}
	c.Writer.WriteHeader(resp.StatusCode)

	streamed := strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream")
	var usage *api.Usage
	if streamed {
		h.copyStream(c, resp.Body)
	} else {
		usage = h.copyBody(c, resp.Body)
	}

	h.record(c, sel, resp, usage, streamed, time.Since(start))
}

func (h *ChatHandler) copyStream(c *gin.Context, body io.Reader) {
	buf := make([]byte, 4096)
	flusher, _ := c.Writer.(http.Flusher)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				h.logger.Warn("provider stream ended abnormally", zap.Error(err))
			}
			return
		}
	}
}

// copyBody writes the buffered body and peeks at usage for cost accounting.
func (h *ChatHandler) copyBody(c *gin.Context, body io.Reader) *api.Usage {
	data, err := io.ReadAll(body)
	if err != nil {
		h.logger.Warn("failed to read provider body", zap.Error(err))
		return nil
	}
	if _, err := c.Writer.Write(data); err != nil {
		return nil
	}

	var completion api.ChatCompletion
	if err := json.Unmarshal(data, &completion); err != nil {
		return nil
	}
	return completion.Usage
}

func (h *ChatHandler) record(c *gin.Context, sel routing.Selection, resp *http.Response, usage *api.Usage, streamed bool, latency time.Duration) {
	log := store.RequestLog{
		ID:          uuid.NewString(),
		InferenceID: resp.Header.Get(proxy.HeaderInferenceID),
		Model:       sel.Model,
		Provider:    sel.Provider.Key,
		StatusCode:  resp.StatusCode,
		Streamed:    streamed,
		LatencyMS:   latency.Milliseconds(),
		CreatedAt:   time.Now().UTC(),
	}
	if consumer, ok := middleware.ConsumerFromContext(c); ok {
		log.ConsumerName = consumer.Name
	}
	if usage != nil {
		log.PromptTokens = int64(usage.PromptTokens)
		log.CompletionTokens = int64(usage.CompletionTokens)
		log.CostNanoUSD = h.pricing.CostNanoUSD(c.Request.Context(), sel.Model, log.PromptTokens, log.CompletionTokens)
	}

	h.ingestor.Log(log)
}
