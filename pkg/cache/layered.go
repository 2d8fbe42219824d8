package cache

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Layered reads through a fast front store into a shared back store.
type Layered struct {
	front  Store
	back   Store
	logger zerolog.Logger
}

// NewLayered creates a two-level store.
func NewLayered(front, back Store) *Layered {
	if front == nil || back == nil {
		panic("layered store needs both layers")
	}
	return &Layered{
		front:  front,
		back:   back,
		logger: log.With().Str("component", "cache").Logger(),
	}
}

// Get checks the front layer, then the back layer. A back-layer hit is
// copied into the front layer; a failed copy is logged and counted but the
// hit is still returned.
func (l *Layered) Get(ctx context.Context, key string) ([]byte, error) {
	if v, err := l.front.Get(ctx, key); err == nil {
		return v, nil
	}

	v, err := l.back.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := l.front.Set(ctx, key, v); err != nil {
		CacheErrors.WithLabelValues("backfill").Inc()
		l.logger.Warn().Err(err).Str("key", key).Msg("Back-fill of front layer failed")
	}
	return v, nil
}

// Set writes to both layers.
func (l *Layered) Set(ctx context.Context, key string, value []byte) error {
	return errors.Join(
		l.front.Set(ctx, key, value),
		l.back.Set(ctx, key, value),
	)
}

// Delete removes key from both layers.
func (l *Layered) Delete(ctx context.Context, key string) error {
	return errors.Join(
		l.front.Delete(ctx, key),
		l.back.Delete(ctx, key),
	)
}
