package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisTTL is how long a fragment stays in the shared store.
const DefaultRedisTTL = 5 * time.Minute

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	// Prefix namespaces keys (default "esi")
	Prefix string

	// TTL is the lifetime of stored fragments (default 5m)
	TTL time.Duration

	// MaxObjectSize is the maximum body size in bytes (0 = DefaultMaxObjectSize)
	MaxObjectSize int
}

// RedisStore is a Store shared between assembler instances.
type RedisStore struct {
	redis         *redis.Client
	prefix        string
	ttl           time.Duration
	maxObjectSize int
}

// NewRedisStore creates a new fragment store with Redis backend.
func NewRedisStore(redisClient *redis.Client, cfg RedisConfig) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultRedisTTL
	}
	if cfg.MaxObjectSize <= 0 {
		cfg.MaxObjectSize = DefaultMaxObjectSize
	}
	return &RedisStore{
		redis:         redisClient,
		prefix:        cfg.Prefix,
		ttl:           cfg.TTL,
		maxObjectSize: cfg.MaxObjectSize,
	}
}

func (s *RedisStore) key(url string) string {
	return Key{Prefix: s.prefix, URL: url}.String()
}

// Get retrieves a fragment by URL.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (s *RedisStore) Get(ctx context.Context, url string) ([]byte, error) {
	data, err := s.redis.Get(ctx, s.key(url)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.WithLabelValues(LayerRedis).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = s.Delete(ctx, url)
		CacheMisses.WithLabelValues(LayerRedis).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(LayerRedis).Inc()
	return entry.Data, nil
}

// Set stores a fragment with the configured TTL.
// Oversized fragments are skipped.
func (s *RedisStore) Set(ctx context.Context, url string, value []byte) error {
	if len(value) > s.maxObjectSize {
		CacheRejected.WithLabelValues(LayerRedis).Inc()
		return nil
	}

	entry := NewEntry(url, value, s.ttl)
	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, s.key(url), data, s.ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a fragment.
func (s *RedisStore) Delete(ctx context.Context, url string) error {
	if err := s.redis.Del(ctx, s.key(url)).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}
