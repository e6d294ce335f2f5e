package providers

import (
	"context"
	"fmt"

	"github.com/veriquery/veriquery/internal/credentials"
	"github.com/veriquery/veriquery/internal/models"
)

// Constructor builds an adapter for one provider kind.
type Constructor func(models.ProviderConfig, *ClientPool) Adapter

// constructors maps each provider kind to its adapter. The OpenAI
// chat-completions wire format covers four kinds outright; only the
// BaseURL differs.
var constructors = map[models.ProviderKind]Constructor{
	models.KindOpenAI:     NewOpenAICompatAdapter,
	models.KindPerplexity: NewOpenAICompatAdapter,
	models.KindOpenRouter: NewOpenAICompatAdapter,
	models.KindLocal:      NewOpenAICompatAdapter,
	models.KindAnthropic:  NewAnthropicAdapter,
	models.KindGemini:     NewGeminiAdapter,
}

// Fleet owns one adapter per enabled provider config plus the shared
// HTTP client pool. It is immutable between config reloads: a reload
// builds a fresh fleet and swaps it in atomically.
type Fleet struct {
	pool            *ClientPool
	adapters        map[string]Adapter
	configs         []models.ProviderConfig
	embedFallbackID string
}

// NewFleet constructs adapters for every enabled provider config,
// resolving missing API keys through the credential store. A provider
// whose key cannot be resolved is still constructed: the key check
// happens at the point of use, so unused providers without keys are
// not an error.
func NewFleet(configs []models.ProviderConfig, creds *credentials.Store, embedFallbackID string) (*Fleet, error) {
	fleet := &Fleet{
		pool:     NewClientPool(),
		adapters: make(map[string]Adapter, len(configs)),
	}

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		ctor, ok := constructors[cfg.Kind]
		if !ok {
			return nil, fmt.Errorf("unknown provider kind %q for provider %q", cfg.Kind, cfg.ID)
		}

		if cfg.APIKey == "" && creds != nil {
			if key, found := creds.Resolve(string(cfg.Kind)); found {
				cfg.APIKey = key
			}
		}

		fleet.adapters[cfg.ID] = ctor(cfg, fleet.pool)
		fleet.configs = append(fleet.configs, cfg)
	}

	fleet.embedFallbackID = embedFallbackID
	if fleet.embedFallbackID == "" {
		for _, cfg := range fleet.configs {
			if cfg.HasCapability(models.CapEmbedding) {
				fleet.embedFallbackID = cfg.ID
				break
			}
		}
	}

	return fleet, nil
}

// Get returns the adapter for a provider id.
func (f *Fleet) Get(id string) (Adapter, bool) {
	a, ok := f.adapters[id]
	return a, ok
}

// Configs returns the enabled provider configs in declaration order.
func (f *Fleet) Configs() []models.ProviderConfig {
	return f.configs
}

// Embed produces an embedding via the named provider, silently falling
// back to the designated embedding provider when the named one lacks
// the capability. The returned Embedding records which adapter
// actually produced the vector.
func (f *Fleet) Embed(ctx context.Context, providerID, text string) (models.Embedding, error) {
	adapter, ok := f.adapters[providerID]
	if ok && adapter.Config().HasCapability(models.CapEmbedding) {
		return adapter.Embed(ctx, text)
	}

	fallback, ok := f.adapters[f.embedFallbackID]
	if !ok {
		return models.Embedding{}, &models.ProviderError{
			Kind:     models.KindConfig,
			Provider: providerID,
			Err:      fmt.Errorf("no embedding-capable provider configured"),
		}
	}
	return fallback.Embed(ctx, text)
}

// Close shuts down every adapter and the shared pool.
func (f *Fleet) Close() error {
	var firstErr error
	for _, a := range f.adapters {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.pool.Close()
	return firstErr
}
