package cache

import (
	"context"
	"errors"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Layer names used as metric labels.
const (
	LayerMemory = "memory"
	LayerRedis  = "redis"
)

// Store is a fragment body store keyed by absolute URL.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the stored body or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores the body. Bodies the store refuses (e.g. too large) are
	// dropped without error.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes the key if present.
	Delete(ctx context.Context, key string) error
}

// memoryStore adapts an LRU to the Store interface.
type memoryStore struct {
	lru *LRU
}

// NewMemoryStore exposes lru as a Store.
func NewMemoryStore(lru *LRU) Store {
	if lru == nil {
		panic("lru cannot be nil")
	}
	return memoryStore{lru: lru}
}

func (m memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	if v, ok := m.lru.Get(key); ok {
		return v, nil
	}
	return nil, ErrCacheMiss
}

func (m memoryStore) Set(_ context.Context, key string, value []byte) error {
	m.lru.Put(key, value)
	return nil
}

func (m memoryStore) Delete(_ context.Context, key string) error {
	m.lru.Delete(key)
	return nil
}
