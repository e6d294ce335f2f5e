package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"

	"github.com/veriquery/veriquery/internal/config"
)

// Metrics provides Prometheus metrics for the query pipeline. A nil
// *Metrics is valid and records nothing, used when metrics are
// disabled.
type Metrics struct {
	config   config.MetricsConfig
	logger   *zap.Logger
	registry *prometheus.Registry
	exporter *otelprometheus.Exporter
	provider *metric.MeterProvider

	requestsTotal    *prometheus.CounterVec
	requestsDuration *prometheus.HistogramVec

	searchesTotal  *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec

	ethicsRejections *prometheus.CounterVec

	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	providerErrors  *prometheus.CounterVec

	routingDecisions *prometheus.CounterVec
	planSize         *prometheus.HistogramVec

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	cacheSize   prometheus.Gauge

	tokensUsed *prometheus.CounterVec
}

// NewMetrics creates and registers the metric set.
func NewMetrics(cfg config.MetricsConfig, logger *zap.Logger) (*Metrics, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprometheus.New()
	if err != nil {
		return nil, err
	}
	provider := metric.NewMeterProvider(metric.WithReader(exporter))

	m := &Metrics{
		config:   cfg,
		logger:   logger,
		registry: registry,
		exporter: exporter,
		provider: provider,
	}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initMetrics() error {
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veriquery_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	m.requestsDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "veriquery_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	m.searchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veriquery_searches_total",
			Help: "Total number of search requests by final status",
		},
		[]string{"status", "error_kind"},
	)

	m.searchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "veriquery_search_duration_seconds",
			Help:    "End to end search duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	m.ethicsRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veriquery_ethics_rejections_total",
			Help: "Queries rejected by the ethics filter, by matched rule",
		},
		[]string{"rule_id"},
	)

	m.providerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veriquery_provider_calls_total",
			Help: "Adapter invocations by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	m.providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "veriquery_provider_latency_seconds",
			Help:    "Provider response latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	m.providerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veriquery_provider_errors_total",
			Help: "Provider errors by kind",
		},
		[]string{"provider", "error_kind"},
	)

	m.routingDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veriquery_routing_decisions_total",
			Help: "Routing plans produced, labeled by the top candidate",
		},
		[]string{"top_provider"},
	)

	m.planSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "veriquery_plan_size",
			Help:    "Number of candidates in produced routing plans",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 8},
		},
		[]string{},
	)

	m.cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "veriquery_cache_hits_total",
		Help: "Result cache hits",
	})
	m.cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "veriquery_cache_misses_total",
		Help: "Result cache misses",
	})
	m.cacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "veriquery_cache_size",
		Help: "Current result cache entry count",
	})

	m.tokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veriquery_tokens_used_total",
			Help: "Tokens consumed per provider",
		},
		[]string{"provider"},
	)

	collectors := []prometheus.Collector{
		m.requestsTotal,
		m.requestsDuration,
		m.searchesTotal,
		m.searchDuration,
		m.ethicsRejections,
		m.providerCalls,
		m.providerLatency,
		m.providerErrors,
		m.routingDecisions,
		m.planSize,
		m.cacheHits,
		m.cacheMisses,
		m.cacheSize,
		m.tokensUsed,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordRequest records metrics for one HTTP request.
func (m *Metrics) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.requestsDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordSearch records a completed search request.
func (m *Metrics) RecordSearch(status, errorKind string, duration time.Duration) {
	if m == nil {
		return
	}
	m.searchesTotal.WithLabelValues(status, errorKind).Inc()
	m.searchDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordEthicsRejection records a query refused by the filter.
func (m *Metrics) RecordEthicsRejection(ruleID string) {
	if m == nil {
		return
	}
	m.ethicsRejections.WithLabelValues(ruleID).Inc()
}

// RecordProviderCall records one adapter invocation.
func (m *Metrics) RecordProviderCall(provider, outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, outcome).Inc()
	m.providerLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

// RecordProviderError records a classified adapter failure.
func (m *Metrics) RecordProviderError(provider, errorKind string) {
	if m == nil {
		return
	}
	m.providerErrors.WithLabelValues(provider, errorKind).Inc()
}

// RecordRoutingDecision records a produced plan.
func (m *Metrics) RecordRoutingDecision(topProvider string, planSize int) {
	if m == nil {
		return
	}
	m.routingDecisions.WithLabelValues(topProvider).Inc()
	m.planSize.WithLabelValues().Observe(float64(planSize))
}

// RecordCacheHit records a result cache hit.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// RecordCacheMiss records a result cache miss.
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

// RecordCacheSize records the current cache entry count.
func (m *Metrics) RecordCacheSize(size int) {
	if m == nil {
		return
	}
	m.cacheSize.Set(float64(size))
}

// RecordTokens records token consumption for a provider.
func (m *Metrics) RecordTokens(provider string, tokens int) {
	if m == nil {
		return
	}
	m.tokensUsed.WithLabelValues(provider).Add(float64(tokens))
}

// GetRegistry returns the Prometheus registry.
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// GetMeterProvider returns the OpenTelemetry meter provider.
func (m *Metrics) GetMeterProvider() *metric.MeterProvider {
	return m.provider
}

// StartMetricsServer serves the registry on the configured port until
// the context is cancelled.
func (m *Metrics) StartMetricsServer(ctx context.Context) error {
	if m == nil || !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:    ":" + strconv.Itoa(m.config.Port),
		Handler: mux,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	m.logger.Info("Metrics server started",
		zap.Int("port", m.config.Port),
		zap.String("path", m.config.Path))

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		m.logger.Error("Error shutting down metrics server", zap.Error(err))
	}
	return nil
}
