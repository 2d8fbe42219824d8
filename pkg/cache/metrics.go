package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (memory, redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esi_fragment_cache_hits_total",
			Help: "Total number of fragment cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks cache misses by layer
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esi_fragment_cache_misses_total",
			Help: "Total number of fragment cache misses",
		},
		[]string{"layer"},
	)

	// CacheEvictions tracks entries evicted from the in-memory LRU
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "esi_fragment_cache_evictions_total",
			Help: "Total number of fragments evicted from the in-memory cache",
		},
	)

	// CacheCompactions tracks access log compactions of the in-memory LRU
	CacheCompactions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "esi_fragment_cache_compactions_total",
			Help: "Total number of access log compactions",
		},
	)

	// CacheRejected tracks fragments that were too large to store
	CacheRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esi_fragment_cache_rejected_total",
			Help: "Total number of fragments not cached because they exceed the size limit",
		},
		[]string{"layer"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esi_fragment_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "backfill"
	)
)
