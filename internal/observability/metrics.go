package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SearchRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_request_duration_seconds",
			Help:    "Search request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.15, 0.2, 0.5, 1, 2.5},
		},
		[]string{"mode", "status"},
	)

	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_requests_total",
			Help: "Total number of search requests",
		},
		[]string{"mode", "status"},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_cache_hits_total",
			Help: "Total number of Redis cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_cache_misses_total",
			Help: "Total number of Redis cache misses",
		},
	)

	TrendingUpdatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trending_updates_total",
			Help: "Total number of trending record increments",
		},
	)

	HistoryUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_history_updates_total",
			Help: "Total number of search history mutations",
		},
		[]string{"kind"},
	)

	TrackingFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_tracking_failures_total",
			Help: "Best-effort tracking side effects that failed",
		},
		[]string{"target"},
	)

	SuggestionRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestion_requests_total",
			Help: "Total number of suggestion requests",
		},
		[]string{"kind"},
	)

	CatalogFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_fetch_duration_seconds",
			Help:    "Catalog candidate fetch duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.15, 0.2, 0.5, 1},
		},
		[]string{"source", "status"},
	)

	CatalogSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_replica_products",
			Help: "Number of products in the in-memory catalog replica",
		},
	)

	CHQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ch_query_duration_seconds",
			Help:    "ClickHouse query duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"query_type", "status"},
	)

	SyncEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_sync_events_total",
			Help: "Total number of catalog change events processed",
		},
		[]string{"operation", "status"},
	)

	SyncLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_sync_lag_seconds",
			Help: "Current catalog sync pipeline lag in seconds",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	SlowSearchCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slow_search_total",
			Help: "Total number of slow searches",
		},
		[]string{"severity"},
	)

	FallbackCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_fallback_total",
			Help: "Total number of search fallback invocations",
		},
		[]string{"level"},
	)
)
