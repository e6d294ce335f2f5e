package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/veriquery/veriquery/internal/models"
)

// Config is the single configuration document for the service.
// The on-disk format is JSON, as served by `veriquery-server -config`.
type Config struct {
	Server ServerConfig `mapstructure:"server"`

	Providers         []models.ProviderConfig `mapstructure:"providers"`
	DefaultProviderID string                  `mapstructure:"default_provider_id"`

	// EmbedFallbackID names the provider used for embeddings when the
	// requested provider has no native embedding endpoint. Empty means
	// the first enabled provider with the embedding capability.
	EmbedFallbackID string `mapstructure:"embed_fallback_id"`

	RateLimits RateLimitConfig `mapstructure:"rate_limits"`
	Ethics     EthicsConfig    `mapstructure:"ethics"`
	Router     RouterConfig    `mapstructure:"router"`
	Cache      CacheConfig     `mapstructure:"cache"`

	// SystemPrompt is prepended to every generation request so replies
	// carry [n] style citations the analyzer can extract.
	SystemPrompt string `mapstructure:"system_prompt"`

	UsageLogPath   string `mapstructure:"usage_log_path"`
	CredentialFile string `mapstructure:"credential_file"`

	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ServerConfig tunes the HTTP listener.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RateLimitConfig caps the shared 60-second usage window.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	TokensPerMinute   int `mapstructure:"tokens_per_minute"`
}

// Principle is one weighted soft-risk rule of the ethics filter.
type Principle struct {
	ID       string   `mapstructure:"id"`
	Weight   float64  `mapstructure:"weight"`
	Keywords []string `mapstructure:"keywords"`
}

// EthicsConfig is the complete rule set of the ethics filter and the
// response analyzer. The rules are data: the engine interprets these
// lists and nothing else.
type EthicsConfig struct {
	HardBlocklist        []string          `mapstructure:"hard_blocklist"`
	Principles           []Principle       `mapstructure:"principles"`
	NegationTerms        []string          `mapstructure:"negation_terms"`
	BiasIndicators       map[string]string `mapstructure:"bias_indicators"`
	ContrastiveMarkers   []string          `mapstructure:"contrastive_markers"`
	TrustedDomainsHigh   []string          `mapstructure:"trusted_domains_high"`
	TrustedDomainsMedium []string          `mapstructure:"trusted_domains_medium"`
}

// RouterConfig tunes candidate scoring.
type RouterConfig struct {
	MinScoreThreshold    float64            `mapstructure:"min_score_threshold"`
	CostPenaltyK         float64            `mapstructure:"cost_penalty_k"`
	ProviderKindBaseline map[string]float64 `mapstructure:"provider_kind_baseline"`
}

// CacheConfig tunes the optional result cache.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

// ObservabilityConfig groups logging, metrics and tracing settings.
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"` // json or console
	Development bool   `mapstructure:"development"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
}

// Load reads the configuration document at path, applies defaults and
// validates the result. The same function serves initial startup and
// admin reloads.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEthicsDefaults(&cfg.Ethics)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the structural invariants of the document.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Providers))
	chatCapable := false

	for _, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("provider with empty id")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate provider id %q", p.ID)
		}
		seen[p.ID] = true

		if p.DefaultTemperature < 0 || p.DefaultTemperature > 2 {
			return fmt.Errorf("provider %q: default_temperature %v out of range [0,2]", p.ID, p.DefaultTemperature)
		}
		if p.DefaultMaxTokens <= 0 {
			return fmt.Errorf("provider %q: default_max_tokens must be positive", p.ID)
		}
		if p.CostPer1KTokens < 0 {
			return fmt.Errorf("provider %q: cost_per_1k_tokens must be non-negative", p.ID)
		}
		if p.Enabled && p.HasCapability(models.CapChat) {
			chatCapable = true
		}
	}

	if !chatCapable {
		return fmt.Errorf("at least one enabled provider with the chat capability is required")
	}
	if c.DefaultProviderID != "" && !seen[c.DefaultProviderID] {
		return fmt.Errorf("default_provider_id %q is not a configured provider", c.DefaultProviderID)
	}
	return nil
}

// Provider returns the config for id, if present.
func (c *Config) Provider(id string) (models.ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return models.ProviderConfig{}, false
}

// EnabledProviders returns every enabled provider config.
func (c *Config) EnabledProviders() []models.ProviderConfig {
	out := make([]models.ProviderConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("rate_limits.requests_per_minute", 50)
	v.SetDefault("rate_limits.tokens_per_minute", 10000)

	v.SetDefault("router.min_score_threshold", 0.4)
	v.SetDefault("router.cost_penalty_k", 5.0)
	v.SetDefault("router.provider_kind_baseline", map[string]float64{
		"openai":     0.6,
		"anthropic":  0.7,
		"gemini":     0.6,
		"perplexity": 0.5,
		"openrouter": 0.5,
		"local":      0.3,
	})

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.max_size", 1000)

	v.SetDefault("usage_log_path", "logs/usage.jsonl")
	v.SetDefault("credential_file", "credentials.json")
	v.SetDefault("system_prompt",
		"You are a research assistant that answers from verifiable sources. "+
			"Cite sources inline with [n] markers and list every source at the end "+
			"as \"[n] Title: URL\". Prefer current, reliable sources. Be objective "+
			"and impartial.")

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.development", false)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.port", 9090)
	v.SetDefault("observability.metrics.path", "/metrics")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.service_name", "veriquery")
	v.SetDefault("observability.tracing.environment", "development")
}

// applyEthicsDefaults fills in the built-in rule set for any list the
// document leaves empty, so a minimal config still carries a working
// filter and analyzer.
func applyEthicsDefaults(e *EthicsConfig) {
	if len(e.HardBlocklist) == 0 {
		e.HardBlocklist = DefaultHardBlocklist()
	}
	if len(e.Principles) == 0 {
		e.Principles = DefaultPrinciples()
	}
	if len(e.NegationTerms) == 0 {
		e.NegationTerms = DefaultNegationTerms()
	}
	if len(e.BiasIndicators) == 0 {
		e.BiasIndicators = DefaultBiasIndicators()
	}
	if len(e.ContrastiveMarkers) == 0 {
		e.ContrastiveMarkers = DefaultContrastiveMarkers()
	}
	if len(e.TrustedDomainsHigh) == 0 {
		e.TrustedDomainsHigh = DefaultTrustedDomainsHigh()
	}
	if len(e.TrustedDomainsMedium) == 0 {
		e.TrustedDomainsMedium = DefaultTrustedDomainsMedium()
	}
}
