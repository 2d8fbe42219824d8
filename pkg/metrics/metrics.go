// Package metrics exposes the Prometheus metrics of the ESI assembler.
// All metrics are defined in their respective packages (cache, client, esi,
// filter) to maintain modularity and avoid circular dependencies.
//
// This package provides the scrape handler and a reference for all
// available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the ESI assembler.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves the metrics of the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Fragment Cache Metrics (pkg/cache):
//   - esi_fragment_cache_hits_total{layer} (Counter): Cache hits by layer (memory, redis)
//   - esi_fragment_cache_misses_total{layer} (Counter): Cache misses by layer
//   - esi_fragment_cache_evictions_total (Counter): Fragments evicted from the in-memory LRU
//   - esi_fragment_cache_compactions_total (Counter): Access log compactions
//   - esi_fragment_cache_rejected_total{layer} (Counter): Fragments too large to store
//   - esi_fragment_cache_errors_total{operation} (Counter): Store errors (get, set, delete, backfill)
//
// Fetch Metrics (pkg/client):
//   - esi_fragment_fetches_total{policy, result} (Counter): Fetches by HTTP status, cache_hit or error
//   - esi_fragment_fetch_duration_seconds{policy} (Histogram): Network fetch duration
//   - esi_fragment_fetch_errors_total{class} (Counter): Errors by class (client, server, network, ssl, redirect, url)
//   - esi_fragment_fetch_retries_total{error_class} (Counter): Retry attempts by error class
//   - esi_fragment_fetch_retry_exhausted_total{error_class} (Counter): Fetches that exhausted max retries
//
// Resolver Metrics (pkg/esi):
//   - esi_resolutions_total{result} (Counter): Documents by result (unchanged, expanded, error)
//   - esi_resolve_duration_seconds (Histogram): Time to resolve a document
//   - esi_includes_total{outcome} (Counter): Includes by outcome (src, alt, continue, invalid, commented, failed)
//   - esi_include_depth (Histogram): Nesting depth of resolved bodies
//
// Filter Metrics (pkg/filter):
//   - esi_filter_responses_total{result} (Counter): Responses by result (passthrough, unchanged, expanded, error)
//
// Example Prometheus Queries:
//
//   # Fragment Cache Hit Rate
//   sum(rate(esi_fragment_cache_hits_total{layer="memory"}[5m])) /
//   (sum(rate(esi_fragment_cache_hits_total{layer="memory"}[5m])) + sum(rate(esi_fragment_cache_misses_total{layer="memory"}[5m])))
//
//   # Failed Pages
//   rate(esi_filter_responses_total{result="error"}[5m])
//
//   # Includes Saved by alt/onerror
//   sum(rate(esi_includes_total{outcome=~"alt|continue"}[5m]))
//
//   # P95 Fragment Latency
//   histogram_quantile(0.95, rate(esi_fragment_fetch_duration_seconds_bucket[5m]))
