package providers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/veriquery/veriquery/internal/models"
)

// Adapter is the uniform shim around one LLM HTTP API. Adapters hold
// no per-request state: everything lives on the call stack except the
// shared HTTP client pool.
type Adapter interface {
	// ID returns the configured provider id this adapter serves.
	ID() string

	// Kind returns the wire protocol family.
	Kind() models.ProviderKind

	// Config returns the provider configuration.
	Config() models.ProviderConfig

	// Generate produces a completion for the prompt. Failures are
	// returned as *models.ProviderError with a classified kind.
	Generate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResponse, error)

	// Embed produces an embedding vector for the text. Adapters whose
	// provider has no embedding endpoint return a not_found error; the
	// fleet handles fallback to an alternative adapter.
	Embed(ctx context.Context, text string) (models.Embedding, error)

	// Moderate classifies the text. Providers without a moderation
	// endpoint answer through a constrained JSON prompt against their
	// own chat endpoint; an unparseable reply yields the neutral
	// assessment rather than an error.
	Moderate(ctx context.Context, text string) (*models.ModerationResult, error)

	// Close releases resources held by the adapter.
	Close() error
}

// ClientPool is the HTTP client shared by all adapters. It is opened
// lazily on first use and closed once on orchestrator shutdown.
type ClientPool struct {
	once   sync.Once
	client *http.Client
}

// NewClientPool creates an unopened pool.
func NewClientPool() *ClientPool {
	return &ClientPool{}
}

// Client returns the shared HTTP client, creating it on first call.
// Per-request deadlines come from the context, not the client.
func (p *ClientPool) Client() *http.Client {
	p.once.Do(func() {
		p.client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        32,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	})
	return p.client
}

// Close drops idle connections. Safe to call on an unopened pool.
func (p *ClientPool) Close() {
	if p.client != nil {
		p.client.CloseIdleConnections()
	}
}

// BaseAdapter provides the configuration plumbing common to all
// adapters.
type BaseAdapter struct {
	config models.ProviderConfig
	pool   *ClientPool
}

// NewBaseAdapter creates a base adapter over the shared pool.
func NewBaseAdapter(config models.ProviderConfig, pool *ClientPool) *BaseAdapter {
	return &BaseAdapter{config: config, pool: pool}
}

// ID returns the provider id.
func (b *BaseAdapter) ID() string {
	return b.config.ID
}

// Kind returns the provider kind.
func (b *BaseAdapter) Kind() models.ProviderKind {
	return b.config.Kind
}

// Config returns the provider configuration.
func (b *BaseAdapter) Config() models.ProviderConfig {
	return b.config
}

// Close is a no-op at the base; the shared pool is closed by its owner.
func (b *BaseAdapter) Close() error {
	return nil
}

// httpClient returns the shared client.
func (b *BaseAdapter) httpClient() *http.Client {
	return b.pool.Client()
}

// requireKey turns a missing API key into a classified config error at
// the point of use, never earlier.
func (b *BaseAdapter) requireKey() error {
	if b.config.APIKey == "" {
		return &models.ProviderError{
			Kind:     models.KindConfig,
			Provider: b.config.ID,
			Err:      errMissingKey,
		}
	}
	return nil
}

// effective fills request defaults from the provider config.
func (b *BaseAdapter) effective(req models.GenerationRequest) models.GenerationRequest {
	if req.Temperature == 0 {
		req.Temperature = b.config.DefaultTemperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = b.config.DefaultMaxTokens
	}
	return req
}
