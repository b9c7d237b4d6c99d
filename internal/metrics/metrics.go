package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "discovery",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10},
	}, []string{"method", "path"})

	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "provider_requests_total",
		Help:      "Total requests to content providers by provider, operation and result kind.",
	}, []string{"provider", "operation", "result"})

	ProviderRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "discovery",
		Name:      "provider_request_duration_seconds",
		Help:      "Content provider request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"provider", "operation"})

	ProviderBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "discovery",
		Name:      "provider_breaker_state",
		Help:      "Circuit breaker state per provider (0 closed, 1 half-open, 2 open).",
	}, []string{"provider"})

	FallbackItemsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "fallback_items_total",
		Help:      "Placeholder items generated per category and caller.",
	}, []string{"category", "caller"})

	SearchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "searches_total",
		Help:      "Search executions by terminal phase.",
	}, []string{"phase"})

	FeedLoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "feed_loads_total",
		Help:      "Discovery feed loads by category, kind (initial, more) and outcome.",
	}, []string{"category", "kind", "outcome"})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "provider_cache_hits_total",
		Help:      "Total number of provider response cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "provider_cache_misses_total",
		Help:      "Total number of provider response cache misses.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ProviderRequestsTotal,
		ProviderRequestDuration,
		ProviderBreakerState,
		FallbackItemsTotal,
		SearchesTotal,
		FeedLoadsTotal,
		CacheHitsTotal,
		CacheMissesTotal,
	)
}
