// Package v1 defines the JSON request and response shapes of the
// public HTTP API.
package v1

import (
	"time"

	"github.com/veriquery/veriquery/internal/models"
)

// SearchRequest is the body of POST /v1/search. Omitted options take
// their defaults: normal validation with the ethics filter enabled.
type SearchRequest struct {
	Text             string                 `json:"text"`
	ValidationLevel  string                 `json:"validation_level,omitempty"`
	EthicalFilter    *bool                  `json:"ethical_filter,omitempty"`
	PreferredModelID string                 `json:"preferred_model_id,omitempty"`
	Context          map[string]interface{} `json:"context,omitempty"`
	TimeoutMS        int                    `json:"timeout_ms,omitempty"`
	Temperature      float64                `json:"temperature,omitempty"`
	MaxTokens        int                    `json:"max_tokens,omitempty"`
}

// Options converts the request fields into pipeline options.
func (r SearchRequest) Options() models.SearchOptions {
	opts := models.DefaultSearchOptions()
	if r.ValidationLevel != "" {
		opts.ValidationLevel = models.ValidationLevel(r.ValidationLevel)
	}
	if r.EthicalFilter != nil {
		opts.EthicalFilter = *r.EthicalFilter
	}
	opts.PreferredModelID = r.PreferredModelID
	opts.Context = r.Context
	if r.TimeoutMS > 0 {
		opts.Timeout = time.Duration(r.TimeoutMS) * time.Millisecond
	}
	opts.Temperature = r.Temperature
	opts.MaxTokens = r.MaxTokens
	return opts
}

// SearchResponse wraps the pipeline result with the request id
// assigned by the server.
type SearchResponse struct {
	RequestID string             `json:"request_id"`
	Result    models.QueryResult `json:"result"`
}

// ProvidersResponse is the body of GET /v1/providers.
type ProvidersResponse struct {
	Providers []models.ProviderConfig `json:"providers"`
}

// UsageResponse is the body of GET /v1/usage.
type UsageResponse struct {
	Providers map[string]ProviderUsage `json:"providers"`
}

// ProviderUsage mirrors the cumulative per-provider counters.
type ProviderUsage struct {
	TotalCalls  int     `json:"total_calls"`
	FailedCalls int     `json:"failed_calls"`
	TotalTokens int     `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
	SuccessRate float64 `json:"success_rate"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// ErrorResponse is the body of any non-2xx reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
