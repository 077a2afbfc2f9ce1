// Package metrics exposes the Prometheus registry used by the ISS client.
// Metrics are defined next to the code that updates them (client, retry,
// pagination, cache, ratelimit, bonds) and registered through promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the ISS client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the HTTP handler serving the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - iss_requests_total{endpoint, status} (Counter): Requests by ISS path and HTTP status
//   - iss_request_duration_seconds{endpoint} (Histogram): Request duration by path
//   - iss_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/retry):
//   - iss_retries_total{policy} (Counter): Failed attempts that were retried
//   - iss_retry_exhausted_total{policy} (Counter): Operations that gave up
//
// Pagination Metrics (pkg/pagination):
//   - iss_pages_fetched_total{section} (Counter): Pages fetched
//   - iss_pagination_rows (Histogram): Rows per completed dataset
//   - iss_pagination_truncated_total{section} (Counter): Datasets cut short by malformed pages
//
// Sweep Metrics (pkg/bonds):
//   - iss_sweep_entities_total{result} (Counter): Bonds processed by result (ok, no_yield, unavailable)
//
// Cache Metrics (pkg/cache):
//   - iss_cache_hits_total{layer="redis"} (Counter)
//   - iss_cache_misses_total (Counter)
//   - iss_cache_size_bytes{layer="redis"} (Gauge)
//   - iss_cache_compression_ratio (Histogram)
//   - iss_cache_errors_total{operation} (Counter)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - iss_rate_limit_wait_seconds (Histogram): Time waiting before a request
//   - iss_rate_limit_cooldowns_total{cause} (Counter): Cooldowns after 429/503
//   - iss_rate_limit_cooldown_active (Gauge)
//
// Example Prometheus Queries:
//
//	# Cache Hit Rate
//	sum(rate(iss_cache_hits_total[5m])) /
//	(sum(rate(iss_cache_hits_total[5m])) + sum(rate(iss_cache_misses_total[5m])))
//
//	# Unavailable entities per sweep
//	increase(iss_sweep_entities_total{result="unavailable"}[1h])
//
//	# P95 Request Latency
//	histogram_quantile(0.95, rate(iss_request_duration_seconds_bucket[5m]))
