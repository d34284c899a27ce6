package routing

import (
	"fmt"
	"sort"

	"github.com/publicai/gateway/internal/config"
)

// Strategy is the closed set of load-balancing policies.
type Strategy int

const (
	// StrategySingle always picks the first (only) candidate.
	StrategySingle Strategy = iota
	// StrategyRandom picks uniformly at random per request.
	StrategyRandom
)

func (s Strategy) String() string {
	switch s {
	case StrategySingle:
		return "single"
	case StrategyRandom:
		return "random"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "single":
		return StrategySingle, nil
	case "random":
		return StrategyRandom, nil
	default:
		return 0, fmt.Errorf("unknown load-balancing strategy %q", s)
	}
}

// ComputeInfo describes where a provider's compute runs, for the disclosure
// message injected into new conversations.
type ComputeInfo struct {
	Location string
	Provider string
	Sponsor  string
}

// DisclosureText renders the system message content for this compute target.
// The sponsor clause appears only when the sponsor differs from the provider.
func (c ComputeInfo) DisclosureText() string {
	sponsorClause := ""
	if c.Sponsor != "" && c.Sponsor != c.Provider {
		sponsorClause = fmt.Sprintf(", sponsored by %s", c.Sponsor)
	}
	return fmt.Sprintf(
		"You are running on compute infrastructure hosted in %s, provided by %s%s. "+
			"Please mention this information naturally in your first response to new conversations.",
		c.Location, c.Provider, sponsorClause,
	)
}

// Provider is one downstream inference backend. Immutable after startup.
type Provider struct {
	Key               string
	Name              string
	BaseURL           string
	APIKey            string
	RequiresMaxTokens bool
	ModelRewrites     map[string]string
	Compute           ComputeInfo
}

// UpstreamModel returns the model name the provider expects, applying the
// configured rename when one exists.
func (p *Provider) UpstreamModel(model string) string {
	if renamed, ok := p.ModelRewrites[model]; ok {
		return renamed
	}
	return model
}

// Model maps one exposed model name to its ordered provider candidates.
type Model struct {
	Name      string
	Strategy  Strategy
	Providers []*Provider
}

// Table is the static routing configuration: model name to Model, provider
// key to Provider. Built once at startup and read-only afterwards, so it is
// safe for concurrent use without locking.
type Table struct {
	models map[string]*Model
	names  []string
}

// NewTable builds and validates the routing table. A model referencing an
// unknown provider key is a configuration error: the gateway fails closed at
// startup rather than dropping provider info at request time.
func NewTable(providerCfgs []config.ProviderConfig, modelCfgs []config.ModelConfig) (*Table, error) {
	providers := make(map[string]*Provider, len(providerCfgs))
	for _, pc := range providerCfgs {
		if pc.Key == "" {
			return nil, fmt.Errorf("provider %q has no key", pc.Name)
		}
		if _, dup := providers[pc.Key]; dup {
			return nil, fmt.Errorf("duplicate provider key %q", pc.Key)
		}
		if pc.BaseURL == "" {
			return nil, fmt.Errorf("provider %q has no base_url", pc.Key)
		}
		providers[pc.Key] = &Provider{
			Key:               pc.Key,
			Name:              pc.Name,
			BaseURL:           pc.BaseURL,
			APIKey:            pc.APIKey,
			RequiresMaxTokens: pc.RequiresMaxTokens,
			ModelRewrites:     pc.ModelRewrites,
			Compute: ComputeInfo{
				Location: pc.Compute.Location,
				Provider: pc.Compute.Provider,
				Sponsor:  pc.Compute.Sponsor,
			},
		}
	}

	t := &Table{models: make(map[string]*Model, len(modelCfgs))}
	for _, mc := range modelCfgs {
		if mc.Name == "" {
			return nil, fmt.Errorf("model entry with empty name")
		}
		if _, dup := t.models[mc.Name]; dup {
			return nil, fmt.Errorf("duplicate model %q", mc.Name)
		}
		strategy, err := ParseStrategy(mc.Strategy)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", mc.Name, err)
		}
		if len(mc.Providers) == 0 {
			return nil, fmt.Errorf("model %q has no providers", mc.Name)
		}
		if strategy == StrategySingle && len(mc.Providers) > 1 {
			return nil, fmt.Errorf("model %q: single strategy with %d providers", mc.Name, len(mc.Providers))
		}

		m := &Model{Name: mc.Name, Strategy: strategy}
		for _, key := range mc.Providers {
			p, ok := providers[key]
			if !ok {
				return nil, fmt.Errorf("model %q references unknown provider %q", mc.Name, key)
			}
			m.Providers = append(m.Providers, p)
		}

		t.models[mc.Name] = m
		t.names = append(t.names, mc.Name)
	}

	sort.Strings(t.names)
	return t, nil
}

// Lookup returns the model config for an exposed model name.
func (t *Table) Lookup(name string) (*Model, bool) {
	m, ok := t.models[name]
	return m, ok
}

// ModelNames returns every configured model name, sorted.
func (t *Table) ModelNames() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}
