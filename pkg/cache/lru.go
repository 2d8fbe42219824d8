package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	// DefaultMaxEntries is the default number of fragments kept in memory.
	DefaultMaxEntries = 1000

	// DefaultMaxObjectSize is the default size limit of a single fragment body.
	DefaultMaxObjectSize = 1 << 20 // 1 MiB
)

// LRUConfig holds the sizing of an LRU.
type LRUConfig struct {
	// MaxEntries is the maximum number of stored fragments.
	MaxEntries int

	// MaxObjectSize is the maximum body size in bytes. Larger bodies are never stored.
	MaxObjectSize int
}

// DefaultLRUConfig returns the default sizing.
func DefaultLRUConfig() LRUConfig {
	return LRUConfig{
		MaxEntries:    DefaultMaxEntries,
		MaxObjectSize: DefaultMaxObjectSize,
	}
}

// Stats is a point-in-time snapshot of LRU counters.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// LRU is a bounded fragment cache with approximate least-recently-used eviction.
//
// All mutations of the store happen with mu held. Get reads the store without
// mu, so writes additionally take storeMu.
type LRU struct {
	maxEntries    int
	maxObjectSize int
	maxQueue      int // access log length that triggers compaction
	dropBatch     int // records dropped per forced-eviction pass

	mu       sync.Mutex
	queue    accessLog
	refcount map[string]int

	storeMu sync.RWMutex
	store   map[string][]byte

	hits   atomic.Int64
	misses atomic.Int64
}

// NewLRU creates an empty LRU.
func NewLRU(cfg LRUConfig) (*LRU, error) {
	if cfg.MaxEntries <= 0 {
		return nil, fmt.Errorf("max_entries must be > 0 (got %d)", cfg.MaxEntries)
	}
	if cfg.MaxObjectSize <= 0 {
		return nil, fmt.Errorf("max_object_size must be > 0 (got %d)", cfg.MaxObjectSize)
	}

	return &LRU{
		maxEntries:    cfg.MaxEntries,
		maxObjectSize: cfg.MaxObjectSize,
		maxQueue:      10 * cfg.MaxEntries,
		dropBatch:     2 * cfg.MaxEntries,
		refcount:      make(map[string]int),
		store:         make(map[string][]byte, cfg.MaxEntries),
	}, nil
}

// Get returns the fragment stored under key.
//
// The access is recorded only if the bookkeeping lock is free; Get never
// waits for a concurrent Put, Delete or compaction.
func (c *LRU) Get(key string) ([]byte, bool) {
	if c.mu.TryLock() {
		c.queue.push(key)
		c.refcount[key]++
		if c.queue.len() > c.maxQueue {
			c.compact()
		}
		c.mu.Unlock()
	}

	c.storeMu.RLock()
	value, ok := c.store[key]
	c.storeMu.RUnlock()

	if ok {
		c.hits.Add(1)
		CacheHits.WithLabelValues(LayerMemory).Inc()
		return value, true
	}
	c.misses.Add(1)
	CacheMisses.WithLabelValues(LayerMemory).Inc()
	return nil, false
}

// Put stores value under key, evicting one entry if the cache is full.
// Values larger than MaxObjectSize are silently dropped.
func (c *LRU) Put(key string, value []byte) {
	if len(value) > c.maxObjectSize {
		CacheRejected.WithLabelValues(LayerMemory).Inc()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		c.evict()
	}

	c.queue.push(key)
	c.refcount[key]++

	c.storeMu.Lock()
	c.store[key] = value
	c.storeMu.Unlock()
}

// Delete removes key from the store. Its access log records stay until
// they are consumed by eviction or compaction.
func (c *LRU) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.storeMu.Lock()
	delete(c.store, key)
	c.storeMu.Unlock()
}

// Len returns the number of stored fragments.
func (c *LRU) Len() int {
	c.storeMu.RLock()
	defer c.storeMu.RUnlock()
	return len(c.store)
}

// Stats returns the hit/miss counters and the current entry count.
func (c *LRU) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.Len(),
	}
}

// evict consumes the head of the access log until a stored key loses its
// last reference, then removes that key. Requires mu.
func (c *LRU) evict() {
	for c.queue.len() > 0 {
		key := c.queue.pop()
		c.refcount[key]--
		if c.refcount[key] > 0 {
			continue
		}
		delete(c.refcount, key)

		// keys that were deleted or only ever missed have nothing to evict
		if _, ok := c.store[key]; !ok {
			continue
		}
		c.storeMu.Lock()
		delete(c.store, key)
		c.storeMu.Unlock()
		CacheEvictions.Inc()
		return
	}
}

// compact deduplicates the access log, keeping the most recent record of
// each key. If the log is still longer than maxQueue, up to dropBatch
// records of keys that are not stored are dropped and the stored keys seen
// on the way are moved to the recent end. Requires mu.
func (c *LRU) compact() {
	records := c.queue.records()

	seen := make(map[string]struct{}, len(c.refcount))
	kept := make([]string, 0, len(c.refcount))
	for i := len(records) - 1; i >= 0; i-- {
		key := records[i]
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, key)
	}
	reverse(kept)

	refcount := make(map[string]int, len(kept))
	for _, key := range kept {
		refcount[key] = 1
	}

	if len(kept) > c.maxQueue {
		var moved []string
		dropped, i := 0, 0
		for ; i < len(kept) && dropped < c.dropBatch; i++ {
			key := kept[i]
			if _, ok := c.store[key]; ok {
				moved = append(moved, key)
				continue
			}
			delete(refcount, key)
			dropped++
		}
		kept = append(kept[i:len(kept):len(kept)], moved...)
	}

	c.queue.reset(kept)
	c.refcount = refcount
	CacheCompactions.Inc()
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// accessLog is a FIFO of keys, oldest first.
type accessLog struct {
	items []string
	head  int
}

func (l *accessLog) len() int {
	return len(l.items) - l.head
}

func (l *accessLog) push(key string) {
	l.items = append(l.items, key)
}

func (l *accessLog) pop() string {
	key := l.items[l.head]
	l.items[l.head] = ""
	l.head++
	// reclaim the consumed prefix once it dominates the backing array
	if l.head >= 64 && l.head > len(l.items)/2 {
		n := copy(l.items, l.items[l.head:])
		l.items = l.items[:n]
		l.head = 0
	}
	return key
}

// records returns the live records, oldest first. The slice aliases the log.
func (l *accessLog) records() []string {
	return l.items[l.head:]
}

func (l *accessLog) reset(keys []string) {
	l.items = keys
	l.head = 0
}
