// Package search is the query orchestrator. It ties the ethics
// filter, router, fallback executor, analyzer, cache and usage
// accounting into the single Search entry point.
package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veriquery/veriquery/internal/analyzer"
	"github.com/veriquery/veriquery/internal/cache"
	"github.com/veriquery/veriquery/internal/config"
	"github.com/veriquery/veriquery/internal/credentials"
	"github.com/veriquery/veriquery/internal/ethics"
	"github.com/veriquery/veriquery/internal/executor"
	"github.com/veriquery/veriquery/internal/models"
	"github.com/veriquery/veriquery/internal/observability"
	"github.com/veriquery/veriquery/internal/providers"
	"github.com/veriquery/veriquery/internal/router"
	"github.com/veriquery/veriquery/internal/usage"
)

// Temperature adjustments applied from request context before
// dispatch, clamped to [0.1, 1.0].
const (
	tempCreativityBump = 0.2
	tempPrecisionDrop  = 0.3
	tempEmotionalBump  = 0.1
	tempDefaultBase    = 0.7
	tempMin            = 0.1
	tempMax            = 1.0
)

// pipeline bundles everything rebuilt on a configuration reload. The
// service swaps the whole bundle atomically so in-flight searches
// keep a consistent view.
type pipeline struct {
	cfg      *config.Config
	fleet    *providers.Fleet
	filter   *ethics.Filter
	router   *router.Router
	analyzer *analyzer.Analyzer
	exec     *executor.Executor
	cache    *cache.ResultCache
}

// Service is the query orchestrator.
type Service struct {
	mu sync.RWMutex
	p  *pipeline

	configPath string
	creds      *credentials.Store
	tracker    *usage.Tracker
	usageLog   *usage.Log
	logger     *zap.Logger
	metrics    *observability.Metrics
	tracing    *observability.Tracing
}

// New builds a service from the configuration document at configPath.
func New(configPath string, creds *credentials.Store, logger *zap.Logger, metrics *observability.Metrics, tracing *observability.Tracing) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	usageLog, err := usage.OpenLog(cfg.UsageLogPath)
	if err != nil {
		return nil, err
	}

	s := &Service{
		configPath: configPath,
		creds:      creds,
		tracker:    usage.NewTracker(cfg.RateLimits.RequestsPerMinute, cfg.RateLimits.TokensPerMinute),
		usageLog:   usageLog,
		logger:     logger,
		metrics:    metrics,
		tracing:    tracing,
	}

	p, err := s.buildPipeline(cfg)
	if err != nil {
		if usageLog != nil {
			_ = usageLog.Close()
		}
		return nil, err
	}
	s.p = p
	return s, nil
}

// buildPipeline constructs the reloadable component bundle.
func (s *Service) buildPipeline(cfg *config.Config) (*pipeline, error) {
	fleet, err := providers.NewFleet(cfg.Providers, s.creds, cfg.EmbedFallbackID)
	if err != nil {
		return nil, err
	}

	var resultCache *cache.ResultCache
	if cfg.Cache.Enabled {
		resultCache = cache.New(cfg.Cache.TTL, cfg.Cache.MaxSize)
	}

	return &pipeline{
		cfg:      cfg,
		fleet:    fleet,
		filter:   ethics.NewFilter(cfg.Ethics),
		router:   router.New(cfg.Router, s.tracker),
		analyzer: analyzer.New(cfg.Ethics),
		exec:     executor.New(fleet, s.tracker, s.logger, s.tracing),
		cache:    resultCache,
	}, nil
}

// Search runs the full pipeline for one query and always returns a
// result; failures are expressed through Status and ErrorKind rather
// than an error return.
func (s *Service) Search(ctx context.Context, text string, opts models.SearchOptions) models.QueryResult {
	receivedAt := time.Now()

	if opts.ValidationLevel == "" {
		opts.ValidationLevel = models.LevelNormal
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	s.mu.RLock()
	p := s.p
	s.mu.RUnlock()

	digest := usage.Digest(text)

	assessment := p.filter.Evaluate(text, opts)
	if !assessment.Accepted {
		s.metrics.RecordEthicsRejection(assessment.MatchedRuleID)
		result := models.QueryResult{
			Status:            models.StatusRejected,
			ErrorKind:         models.KindEthicalRejection,
			ErrorDetail:       assessment.Reason,
			EthicalAssessment: assessment,
		}
		return s.finish(result, digest, receivedAt)
	}

	cacheKey := cache.Key{Digest: digest, Level: opts.ValidationLevel}
	if cached, ok := p.cache.Get(cacheKey); ok {
		s.metrics.RecordCacheHit()
		cached.Cached = true
		cached.EthicalAssessment = assessment
		return s.finish(cached, digest, receivedAt)
	}
	if p.cache != nil {
		s.metrics.RecordCacheMiss()
	}

	var (
		plan     models.CandidatePlan
		features router.Features
	)
	_ = s.tracing.TraceOperation(ctx, "search.route", func(ctx context.Context) error {
		plan, features = p.router.Plan(text, opts, p.cfg.Providers)
		return nil
	})
	if len(plan) == 0 {
		result := models.QueryResult{
			Status:            models.StatusFailed,
			ErrorKind:         models.KindNoViableModel,
			ErrorDetail:       models.ErrEmptyPlan.Error(),
			EthicalAssessment: assessment,
		}
		return s.finish(result, digest, receivedAt)
	}
	s.metrics.RecordRoutingDecision(plan[0].ProviderID, len(plan))
	s.logger.Debug("routing plan produced",
		zap.Strings("candidates", plan.IDs()),
		zap.Float64("complexity", features.Complexity),
		zap.Float64("risk", features.Risk))

	req := models.GenerationRequest{
		Prompt:       text,
		SystemPrompt: p.cfg.SystemPrompt,
		Temperature:  adjustTemperature(opts),
		MaxTokens:    opts.MaxTokens,
		RequestID:    uuid.NewString(),
	}

	var execResult *executor.Result
	err := s.tracing.TraceOperation(ctx, "search.execute", func(ctx context.Context) error {
		var execErr error
		execResult, execErr = p.exec.Execute(ctx, plan, req)
		return execErr
	})
	if err != nil {
		result := s.failureResult(err, assessment)
		return s.finish(result, digest, receivedAt)
	}

	s.metrics.RecordProviderCall(execResult.ProviderID, "success", execResult.Elapsed)
	s.metrics.RecordTokens(execResult.ProviderID, execResult.Response.TokensUsed)

	sources, report := p.analyzer.Analyze(execResult.Response.Text, opts.ValidationLevel)

	result := models.QueryResult{
		Status:            models.StatusSuccess,
		Content:           execResult.Response.Text,
		Sources:           sources,
		Validation:        &report,
		ModelIDUsed:       execResult.ProviderID,
		TokensUsed:        execResult.Response.TokensUsed,
		CostEstimate:      execResult.Cost,
		EthicalAssessment: assessment,
	}

	if p.cache != nil {
		p.cache.Set(cacheKey, result)
		s.metrics.RecordCacheSize(p.cache.Len())
	}
	return s.finish(result, digest, receivedAt)
}

// failureResult maps executor errors onto the result taxonomy.
func (s *Service) failureResult(err error, assessment models.EthicalAssessment) models.QueryResult {
	result := models.QueryResult{
		Status:            models.StatusFailed,
		ErrorDetail:       err.Error(),
		EthicalAssessment: assessment,
	}

	var allFailed *models.AllFailedError
	var perr *models.ProviderError
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		result.ErrorKind = models.KindTimeout
	case errors.Is(err, models.ErrRateLimited):
		result.ErrorKind = models.KindRateLimited
	case errors.As(err, &perr):
		result.ErrorKind = perr.Kind
		s.metrics.RecordProviderError(perr.Provider, string(perr.Kind))
	case errors.As(err, &allFailed):
		result.ErrorKind = models.KindAllProvidersFailed
		result.ProviderErrors = allFailed.Errors
	default:
		result.ErrorKind = models.KindAllProvidersFailed
	}
	return result
}

// finish stamps timing, appends the usage log entry and records the
// search metrics. Every Search exit path flows through here.
func (s *Service) finish(result models.QueryResult, digest string, receivedAt time.Time) models.QueryResult {
	elapsed := time.Since(receivedAt)
	if !result.Cached {
		result.ResponseTimeMS = elapsed.Milliseconds()
	}

	confidence := 0.0
	if result.Validation != nil {
		confidence = result.Validation.Confidence
	}
	entry := usage.Entry{
		Timestamp:   receivedAt,
		QueryDigest: digest,
		ModelID:     result.ModelIDUsed,
		TokensUsed:  result.TokensUsed,
		Cost:        result.CostEstimate,
		Status:      string(result.Status),
		ErrorKind:   string(result.ErrorKind),
		RiskScore:   result.EthicalAssessment.RiskScore,
		Confidence:  confidence,
	}
	if result.Cached {
		// A hit spends nothing; logging the stored result's tokens
		// again would double-count the original call.
		entry.TokensUsed = 0
		entry.Cost = 0
		entry.Cached = true
	}
	if err := s.usageLog.Append(entry); err != nil {
		s.logger.Warn("usage log append failed", zap.Error(err))
	}

	s.metrics.RecordSearch(string(result.Status), string(result.ErrorKind), elapsed)
	return result
}

// ListProviders returns every configured provider with credentials
// stripped.
func (s *Service) ListProviders() []models.ProviderConfig {
	s.mu.RLock()
	p := s.p
	s.mu.RUnlock()

	out := make([]models.ProviderConfig, 0, len(p.cfg.Providers))
	for _, pc := range p.cfg.Providers {
		out = append(out, pc.Redacted())
	}
	return out
}

// UsageSnapshot returns the cumulative per-provider counters.
func (s *Service) UsageSnapshot() map[string]usage.ProviderStats {
	return s.tracker.Snapshot()
}

// ReloadConfig re-reads the configuration document and swaps in a
// fresh pipeline. In-flight searches finish against the old bundle;
// the result cache does not survive a reload.
func (s *Service) ReloadConfig() error {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return err
	}
	next, err := s.buildPipeline(cfg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.p
	s.p = next
	s.mu.Unlock()

	old.fleet.Close()
	old.cache.Clear()

	s.logger.Info("configuration reloaded",
		zap.Int("providers", len(cfg.Providers)))
	return nil
}

// Embed exposes the fleet's embedding entry point, including its
// fallback behavior for providers without native embeddings.
func (s *Service) Embed(ctx context.Context, providerID, text string) (models.Embedding, error) {
	s.mu.RLock()
	p := s.p
	s.mu.RUnlock()
	return p.fleet.Embed(ctx, providerID, text)
}

// Close releases the fleet's HTTP resources and the usage log.
func (s *Service) Close() error {
	s.mu.Lock()
	p := s.p
	s.mu.Unlock()

	p.fleet.Close()
	return s.usageLog.Close()
}

// adjustTemperature derives the request temperature from the caller's
// explicit value and recognized context hints. With no explicit value
// and no hints, zero is returned and the provider default applies.
func adjustTemperature(opts models.SearchOptions) float64 {
	creative := opts.ContextFlag("requires_creativity")
	precise := opts.ContextFlag("requires_precision")
	emotional := opts.ContextFlag("emotional_context")

	temp := opts.Temperature
	if temp == 0 {
		if !creative && !precise && !emotional {
			return 0
		}
		temp = tempDefaultBase
	}

	if creative {
		temp += tempCreativityBump
	}
	if precise {
		temp -= tempPrecisionDrop
	}
	if emotional {
		temp += tempEmotionalBump
	}

	if temp < tempMin {
		temp = tempMin
	}
	if temp > tempMax {
		temp = tempMax
	}
	return temp
}
