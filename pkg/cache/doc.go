// Package cache provides the fragment cache used by the include fetcher.
//
// Fragment bodies are keyed by their fully-resolved absolute URL. Three
// stores are available behind the Store interface:
//
//   - LRU (via NewMemoryStore): a bounded in-process cache with approximate
//     least-recently-used eviction. Reads never block behind writers.
//   - RedisStore: a shared store for fleets of assemblers, with a TTL per
//     entry.
//   - Layered: an in-process layer in front of a shared layer. Misses on the
//     front layer are back-filled from the back layer.
//
// # Basic Usage
//
//	lru, err := cache.NewLRU(cache.DefaultLRUConfig())
//	if err != nil {
//		return err
//	}
//
//	lru.Put("https://example.com/header.html", body)
//	if body, ok := lru.Get("https://example.com/header.html"); ok {
//		// hit
//	}
//
// # Approximate LRU
//
// Recency is tracked with an append-only access log and a per-key reference
// count instead of a recency-ordered list. Get records an access only when
// the bookkeeping lock is free, so under contention eviction precision
// degrades while hit/miss results stay exact. The log is deduplicated once
// it grows past ten times the entry capacity; if it is still too long after
// that, log records of keys that are no longer stored are dropped in
// batches.
//
// # Metrics
//
//   - esi_fragment_cache_hits_total{layer} - Cache hits
//   - esi_fragment_cache_misses_total{layer} - Cache misses
//   - esi_fragment_cache_evictions_total - LRU evictions
//   - esi_fragment_cache_compactions_total - Access log compactions
//   - esi_fragment_cache_rejected_total{layer} - Oversized fragments not stored
//   - esi_fragment_cache_errors_total{operation} - Store operation errors, including failed back-fills
package cache
