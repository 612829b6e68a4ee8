// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。实现 llm.MetricsSink 与 search.AdapterMetrics。
type Collector struct {
	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec
	llmCost            *prometheus.CounterVec
	llmFallbacksTotal  prometheus.Counter

	// 搜索指标
	searchRequestsTotal   *prometheus.CounterVec
	searchRequestDuration *prometheus.HistogramVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// LLM 指标
	c.llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"provider", "outcome"},
	)

	c.llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	c.llmTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "type"}, // type: prompt, completion
	)

	c.llmCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cost_total",
			Help:      "Total LLM cost in USD",
		},
		[]string{"provider"},
	)

	c.llmFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_fallbacks_total",
			Help:      "Total number of provider fallbacks",
		},
	)

	// 搜索指标
	c.searchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Total number of search requests",
		},
		[]string{"backend", "outcome"},
	)

	c.searchRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_request_duration_seconds",
			Help:      "Search request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"backend"},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// ====== llm.MetricsSink ======

func (c *Collector) ObserveLLMRequest(provider, outcome string, latency time.Duration) {
	c.llmRequestsTotal.WithLabelValues(provider, outcome).Inc()
	c.llmRequestDuration.WithLabelValues(provider).Observe(latency.Seconds())
}

func (c *Collector) AddTokens(provider string, prompt, completion int) {
	c.llmTokensUsed.WithLabelValues(provider, "prompt").Add(float64(prompt))
	c.llmTokensUsed.WithLabelValues(provider, "completion").Add(float64(completion))
}

func (c *Collector) AddCost(provider string, usd float64) {
	c.llmCost.WithLabelValues(provider).Add(usd)
}

func (c *Collector) IncFallback() {
	c.llmFallbacksTotal.Inc()
}

// ====== search.AdapterMetrics ======

func (c *Collector) ObserveSearch(backend, outcome string, latency time.Duration) {
	c.searchRequestsTotal.WithLabelValues(backend, outcome).Inc()
	c.searchRequestDuration.WithLabelValues(backend).Observe(latency.Seconds())
}

// ====== 缓存 ======

func (c *Collector) IncCacheHit(cache string)  { c.cacheHits.WithLabelValues(cache).Inc() }
func (c *Collector) IncCacheMiss(cache string) { c.cacheMisses.WithLabelValues(cache).Inc() }
