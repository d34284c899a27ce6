package routing

import (
	"errors"
	"math/rand/v2"

	"github.com/publicai/gateway/pkg/api"
	"go.uber.org/zap"
)

// ErrUnknownModel reports a model name absent from the routing table.
var ErrUnknownModel = errors.New("unsupported model")

// Selection is one routing decision.
type Selection struct {
	Model    string
	Provider *Provider
	Strategy Strategy
	// Balanced is true when the model had more than one candidate, i.e. a
	// load-balancing choice actually happened.
	Balanced bool
}

// Router resolves models to providers and rewrites outgoing requests.
// Stateless apart from the immutable table; safe for concurrent use.
type Router struct {
	table  *Table
	logger *zap.Logger

	// pick selects an index in [0,n); overridden in tests.
	pick func(n int) int
}

func NewRouter(table *Table, logger *zap.Logger) *Router {
	return &Router{
		table:  table,
		logger: logger,
		pick:   rand.IntN,
	}
}

// ModelNames lists the supported model names for error responses.
func (r *Router) ModelNames() []string {
	return r.table.ModelNames()
}

// Select picks a provider for the requested model. Candidates are known to
// resolve (the table validated them at startup), so selection cannot fail
// for a known model.
func (r *Router) Select(model string) (Selection, error) {
	m, ok := r.table.Lookup(model)
	if !ok {
		return Selection{}, ErrUnknownModel
	}

	sel := Selection{
		Model:    model,
		Strategy: m.Strategy,
		Balanced: len(m.Providers) > 1,
	}

	switch m.Strategy {
	case StrategyRandom:
		sel.Provider = m.Providers[r.pick(len(m.Providers))]
	default:
		sel.Provider = m.Providers[0]
	}

	if sel.Balanced {
		r.logger.Info("load balancing request",
			zap.String("model", model),
			zap.String("strategy", m.Strategy.String()),
			zap.String("provider", sel.Provider.Key),
		)
	} else {
		r.logger.Info("routing request",
			zap.String("model", model),
			zap.String("provider", sel.Provider.Key),
		)
	}

	return sel, nil
}

// Rewrite applies the provider-specific request mutations in place: model
// rename, disclosure injection for new conversations, and the default token
// limit for providers that require one.
func (r *Router) Rewrite(req *api.ChatCompletionRequest, sel Selection) error {
	provider := sel.Provider

	req.Model = provider.UpstreamModel(sel.Model)

	// A conversation is new when no assistant turn exists yet. Only then is
	// the compute disclosure injected, so repeated turns never accumulate it.
	if !req.HasAssistantMessage() {
		if err := injectDisclosure(req, provider.Compute); err != nil {
			return err
		}
		r.logger.Debug("injected compute disclosure",
			zap.String("provider", provider.Key),
			zap.String("location", provider.Compute.Location),
		)
	}

	if provider.RequiresMaxTokens && req.MaxTokens == nil {
		defaultMax := defaultMaxTokens
		req.MaxTokens = &defaultMax
	}

	return nil
}

const defaultMaxTokens = 1000

func injectDisclosure(req *api.ChatCompletionRequest, compute ComputeInfo) error {
	text := compute.DisclosureText()

	// Preserve portal-level system instructions by appending rather than
	// inserting a second system message ahead of them.
	if len(req.Messages) > 0 && req.Messages[0].Role == api.RoleSystem {
		return req.Messages[0].AppendText("\n\n" + text)
	}

	req.Messages = append([]api.Message{api.NewMessage(api.RoleSystem, text)}, req.Messages...)
	return nil
}
