package v1

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/publicai/gateway/internal/pricing"
	"github.com/publicai/gateway/pkg/api"
)

type ModelHandler struct {
	pricing *pricing.Client
	logger  *zap.Logger
}

func NewModelHandler(pricingClient *pricing.Client, logger *zap.Logger) *ModelHandler {
	return &ModelHandler{pricing: pricingClient, logger: logger}
}

// ListModels returns the upstream catalog enriched with per-million pricing
// and context length. The pricing lookup failing degrades to the bare list.
func (h *ModelHandler) ListModels(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		wg      sync.WaitGroup
		list    *api.ModelList
		listErr error
		catalog map[string]pricing.ModelInfo
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		list, listErr = h.pricing.ListModels(ctx)
	}()
	go func() {
		defer wg.Done()
		var err error
		catalog, err = h.pricing.ModelInfo(ctx)
		if err != nil {
			h.logger.Warn("model info unavailable, serving bare list", zap.Error(err))
		}
	}()
	wg.Wait()

	if listErr != nil {
		c.Error(api.APIError("Failed to fetch models", listErr))
		return
	}

	for i := range list.Data {
		m := &list.Data[i]
		if m.OwnedBy == "" {
			if owner, _, found := strings.Cut(m.ID, "/"); found {
				m.OwnedBy = owner
			}
		}
		info, ok := catalog[m.ID]
		if !ok {
			continue
		}
		m.Pricing = &api.ModelPricing{
			Input:  info.PerMillionInput(),
			Output: info.PerMillionOutput(),
		}
		m.ContextLength = info.ContextLength()
	}

	list.Object = "list"
	c.JSON(http.StatusOK, list)
}
