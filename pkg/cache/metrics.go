package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iss_cache_hits_total",
			Help: "Total number of ISS cache hits",
		},
		[]string{"layer"}, // "redis"
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "iss_cache_misses_total",
			Help: "Total number of ISS cache misses",
		},
	)

	// CacheSize tracks bytes written to the cache by layer
	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "iss_cache_size_bytes",
			Help: "Bytes written to the ISS cache (compressed)",
		},
		[]string{"layer"}, // "redis"
	)

	// CompressionRatio observes raw/stored size per Set
	CompressionRatio = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "iss_cache_compression_ratio",
			Help:    "Ratio of raw entry size to compressed size",
			Buckets: []float64{1, 2, 4, 8, 16, 32},
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iss_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
