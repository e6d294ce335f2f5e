package models

import (
	"time"
)

// ProviderKind identifies the wire protocol family an adapter speaks.
type ProviderKind string

const (
	KindOpenAI     ProviderKind = "openai"
	KindAnthropic  ProviderKind = "anthropic"
	KindGemini     ProviderKind = "gemini"
	KindPerplexity ProviderKind = "perplexity"
	KindOpenRouter ProviderKind = "openrouter"
	KindLocal      ProviderKind = "local"
)

// Capability describes something a configured model is able to do.
type Capability string

const (
	CapChat        Capability = "chat"
	CapEmbedding   Capability = "embedding"
	CapModeration  Capability = "moderation"
	CapCoding      Capability = "coding"
	CapLongContext Capability = "long_context"
	CapReasoning   Capability = "reasoning"
)

// ValidationLevel controls how strictly ethics rules and response
// validation are applied.
type ValidationLevel string

const (
	LevelMinimal ValidationLevel = "minimal"
	LevelNormal  ValidationLevel = "normal"
	LevelStrict  ValidationLevel = "strict"
)

// ProviderConfig is the identity of one backend endpoint.
type ProviderConfig struct {
	ID                 string        `mapstructure:"id" json:"id"`
	Kind               ProviderKind  `mapstructure:"provider_kind" json:"provider_kind"`
	ModelName          string        `mapstructure:"model_name" json:"model_name"`
	BaseURL            string        `mapstructure:"base_url" json:"base_url,omitempty"`
	APIKey             string        `mapstructure:"api_key" json:"-"`
	DefaultTemperature float64       `mapstructure:"default_temperature" json:"default_temperature"`
	DefaultMaxTokens   int           `mapstructure:"default_max_tokens" json:"default_max_tokens"`
	Capabilities       []Capability  `mapstructure:"capabilities" json:"capabilities"`
	CostPer1KTokens    float64       `mapstructure:"cost_per_1k_tokens" json:"cost_per_1k_tokens"`
	PriorityRank       int           `mapstructure:"priority_rank" json:"priority_rank"`
	Enabled            bool          `mapstructure:"enabled" json:"enabled"`
	HighTrust          bool          `mapstructure:"high_trust" json:"high_trust,omitempty"`
	Timeout            time.Duration `mapstructure:"timeout" json:"-"`
	MaxRetries         int           `mapstructure:"max_retries" json:"-"`
	RetryDelay         time.Duration `mapstructure:"retry_delay" json:"-"`
}

// HasCapability reports whether the config lists the given capability.
func (c ProviderConfig) HasCapability(cap Capability) bool {
	for _, have := range c.Capabilities {
		if have == cap {
			return true
		}
	}
	return false
}

// Redacted returns a copy safe for diagnostics output.
func (c ProviderConfig) Redacted() ProviderConfig {
	c.APIKey = ""
	return c
}

// SearchOptions are the per-call knobs recognized by Search.
type SearchOptions struct {
	ValidationLevel  ValidationLevel        `json:"validation_level"`
	EthicalFilter    bool                   `json:"ethical_filter"`
	PreferredModelID string                 `json:"preferred_model_id,omitempty"`
	Context          map[string]interface{} `json:"context,omitempty"`
	Timeout          time.Duration          `json:"-"`
	Temperature      float64                `json:"temperature,omitempty"`
	MaxTokens        int                    `json:"max_tokens,omitempty"`
}

// DefaultSearchOptions returns the options applied when the caller
// supplies none: normal validation with the ethics filter on.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		ValidationLevel: LevelNormal,
		EthicalFilter:   true,
	}
}

// ContextFlag reports whether the named context flag is truthy.
func (o SearchOptions) ContextFlag(name string) bool {
	v, ok := o.Context[name]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// ContextFloat returns the named context value as a float, or 0.
func (o SearchOptions) ContextFloat(name string) float64 {
	switch v := o.Context[name].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// Query is a single caller request.
type Query struct {
	Text       string        `json:"text"`
	Options    SearchOptions `json:"options"`
	ReceivedAt time.Time     `json:"received_at"`
}

// EthicalAssessment is the outcome of the pre-query rule engine.
type EthicalAssessment struct {
	Accepted        bool    `json:"accepted"`
	Reason          string  `json:"reason,omitempty"`
	MatchedRuleID   string  `json:"matched_rule_id,omitempty"`
	RiskScore       float64 `json:"risk_score"`
	ContextScore    float64 `json:"context_score"`
	ConfidenceScore float64 `json:"confidence_score"`
}

// Candidate is one entry of a routing plan.
type Candidate struct {
	ProviderID string  `json:"provider_id"`
	Score      float64 `json:"score"`
}

// CandidatePlan is the router's ordered list of providers to try.
// The first element is the preferred attempt.
type CandidatePlan []Candidate

// IDs returns the provider ids in plan order.
func (p CandidatePlan) IDs() []string {
	ids := make([]string, len(p))
	for i, c := range p {
		ids[i] = c.ProviderID
	}
	return ids
}

// Source is one citation extracted from a model reply.
type Source struct {
	RefID            string  `json:"ref_id"`
	Title            string  `json:"title"`
	URL              string  `json:"url"`
	Reliability      float64 `json:"reliability"`
	ExtractionMethod string  `json:"extraction_method"`
}

// Extraction methods for Source.
const (
	ExtractionExplicitListing = "explicit_listing"
	ExtractionURL             = "url_extraction"
)

// ValidationReport is the response analyzer's verdict on a reply.
type ValidationReport struct {
	HasSources        bool     `json:"has_sources"`
	SourceCount       int      `json:"source_count"`
	SourceConsistency float64  `json:"source_consistency"`
	PotentialBiases   []string `json:"potential_biases"`
	Confidence        float64  `json:"confidence"`
	Passed            bool     `json:"passed"`
}

// Status values for QueryResult.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusRejected Status = "rejected"
	StatusFailed   Status = "failed"
)

// QueryResult is what Search returns to the caller. The orchestrator
// never raises: failures are expressed through Status and ErrorKind.
type QueryResult struct {
	Status            Status            `json:"status"`
	Content           string            `json:"content,omitempty"`
	Sources           []Source          `json:"sources,omitempty"`
	Validation        *ValidationReport `json:"validation,omitempty"`
	ModelIDUsed       string            `json:"model_id_used,omitempty"`
	ResponseTimeMS    int64             `json:"response_time_ms"`
	TokensUsed        int               `json:"tokens_used"`
	CostEstimate      float64           `json:"cost_estimate"`
	EthicalAssessment EthicalAssessment `json:"ethical_assessment"`
	ErrorKind         ErrorKind         `json:"error_kind,omitempty"`
	ErrorDetail       string            `json:"error_detail,omitempty"`
	ProviderErrors    map[string]string `json:"provider_errors,omitempty"`
	Cached            bool              `json:"cached,omitempty"`
}

// GenerationRequest is the uniform input to every adapter's Generate.
type GenerationRequest struct {
	Prompt       string   `json:"prompt"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Temperature  float64  `json:"temperature,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	Stop         []string `json:"stop,omitempty"`
	RequestID    string   `json:"request_id,omitempty"`
}

// GenerationResponse is the uniform output of every adapter's Generate.
type GenerationResponse struct {
	Text       string                 `json:"text"`
	TokensUsed int                    `json:"tokens_used"`
	Raw        map[string]interface{} `json:"raw,omitempty"`
}

// Embedding is a vector produced by an adapter's Embed. ProviderID
// records which adapter actually produced it: when the requested
// provider has no native embeddings the fleet silently falls back to
// a designated alternative, and this field carries its identity.
type Embedding struct {
	Vector     []float32 `json:"vector"`
	ProviderID string    `json:"provider_id"`
}

// ModerationResult is the uniform output of every adapter's Moderate.
type ModerationResult struct {
	Flagged    bool               `json:"flagged"`
	Categories map[string]bool    `json:"categories"`
	Scores     map[string]float64 `json:"scores"`
}

// NeutralModeration is the assessment returned when a chat-based
// moderation fallback cannot be parsed.
func NeutralModeration() *ModerationResult {
	return &ModerationResult{
		Flagged:    false,
		Categories: map[string]bool{},
		Scores:     map[string]float64{},
	}
}
