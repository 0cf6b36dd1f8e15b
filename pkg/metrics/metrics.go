// Package metrics provides the Prometheus registry and scrape handler for the
// UTS client. Metrics are defined in their respective packages (client,
// auth, cache, ratelimit) to avoid circular dependencies.
//
// This package documents all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the UTS client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer paired with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the scrape handler for Gatherer.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - uts_ratelimit_admissions_total{strategy} (Counter): Requests admitted by the limiter
//   - uts_ratelimit_wait_seconds{strategy} (Histogram): Time spent waiting for admission
//
// Auth Metrics (pkg/auth):
//   - uts_tickets_issued_total (Counter): Service tickets minted
//   - uts_auth_failures_total{op="login|ticket"} (Counter): Authentication failures
//
// Cache Metrics (pkg/cache):
//   - uts_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - uts_cache_misses_total (Counter): Cache misses
//   - uts_cache_size_bytes{layer="redis"} (Gauge): Bytes written to cache
//   - uts_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - uts_requests_total{status} (Counter): Resource requests by HTTP status
//   - uts_request_duration_seconds (Histogram): Resource request duration
//   - uts_pages_fetched_total{source="network|cache"} (Counter): Pages fetched
//   - uts_service_errors_total (Counter): Structured service errors returned as results
//   - uts_fatal_errors_total{class} (Counter): Fatal errors (auth, overload, network, decode)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(uts_cache_hits_total[5m])) /
//   (sum(rate(uts_cache_hits_total[5m])) + sum(rate(uts_cache_misses_total[5m])))
//
//   # Overload Rate
//   rate(uts_fatal_errors_total{class="overload"}[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(uts_request_duration_seconds_bucket[5m]))
//
//   # Mean limiter wait
//   rate(uts_ratelimit_wait_seconds_sum[5m]) / rate(uts_ratelimit_wait_seconds_count[5m])
