package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/Sternrassler/esi-assembler/pkg/cache"
	"github.com/Sternrassler/esi-assembler/pkg/client"
	"github.com/Sternrassler/esi-assembler/pkg/config"
	"github.com/Sternrassler/esi-assembler/pkg/esi"
	"github.com/Sternrassler/esi-assembler/pkg/filter"
	"github.com/Sternrassler/esi-assembler/pkg/logging"
	"github.com/Sternrassler/esi-assembler/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// app holds the wired components of the proxy.
type app struct {
	cfg      config.Config
	redis    *redis.Client // nil unless the cache provider uses redis
	lru      *cache.LRU    // nil unless the cache provider keeps fragments in memory
	fetcher  *client.Fetcher
	resolver *esi.Resolver
	proxy    *httputil.ReverseProxy
	logger   zerolog.Logger
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logging.NewLogger("server"),
	}

	store, err := a.buildStore(ctx)
	if err != nil {
		return nil, err
	}

	p, err := cfg.FetchPolicy()
	if err != nil {
		return nil, err
	}
	if store != nil {
		p = p.WithCache(store)
	}

	clientCfg := client.DefaultConfig()
	clientCfg.UserAgent = cfg.Fetch.UserAgent
	clientCfg.Timeout = cfg.Fetch.Timeout
	clientCfg.MaxRedirects = cfg.Fetch.MaxRedirects
	clientCfg.Retry.MaxAttempts = cfg.Fetch.RetryAttempts

	a.fetcher, err = client.New(p, clientCfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	a.resolver, err = esi.New(a.fetcher, esi.Config{Debug: cfg.Debug})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create resolver: %w", err)
	}

	upstream, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	a.proxy = newProxy(upstream, a.logger)

	return a, nil
}

// buildStore creates the fragment store selected by the cache provider.
// A nil store disables caching.
func (a *app) buildStore(ctx context.Context) (cache.Store, error) {
	cc := a.cfg.Cache

	var memory cache.Store
	if cc.Provider == config.ProviderMemory || cc.Provider == config.ProviderLayered {
		lru, err := cache.NewLRU(cc.LRUConfig())
		if err != nil {
			return nil, fmt.Errorf("create memory cache: %w", err)
		}
		a.lru = lru
		memory = cache.NewMemoryStore(lru)
	}

	var shared cache.Store
	if a.cfg.UsesRedis() {
		opts, err := cc.RedisOptions()
		if err != nil {
			return nil, err
		}
		a.redis = redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.redis.Ping(pingCtx).Err(); err != nil {
			a.redis.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
		}
		a.logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
		shared = cache.NewRedisStore(a.redis, cc.RedisConfig())
	}

	a.logger.Info().Str("provider", cc.Provider).Msg("Fragment cache configured")

	switch cc.Provider {
	case config.ProviderMemory:
		return memory, nil
	case config.ProviderRedis:
		return shared, nil
	case config.ProviderLayered:
		return cache.NewLayered(memory, shared), nil
	default:
		return nil, nil
	}
}

// newProxy forwards requests to upstream. Accept-Encoding is dropped so
// HTML arrives uncompressed and can be expanded.
func newProxy(upstream *url.URL, logger zerolog.Logger) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
			pr.Out.Header.Del("Accept-Encoding")
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error().Err(err).Str("path", r.URL.Path).Msg("Upstream request failed")
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		},
	}
}

func (a *app) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(a.logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request served")
	}))

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(a.redis))
	r.Handle("/metrics", metrics.Handler())
	if a.lru != nil {
		r.Get("/cache/stats", statsHandler(a.lru))
	}

	r.Handle("/*", filter.New(a.resolver).Handler(a.proxy))
	return r
}

// Close releases the Redis connection, if any.
func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, "Redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

func statsHandler(lru *cache.LRU) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := lru.Stats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"hits":    stats.Hits,
			"misses":  stats.Misses,
			"entries": stats.Entries,
		})
	}
}
