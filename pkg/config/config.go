// Package config loads the esi-assembler configuration from an optional
// YAML file and environment variables. Environment variables win.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/esi-assembler/pkg/cache"
	"github.com/Sternrassler/esi-assembler/pkg/logging"
	"github.com/Sternrassler/esi-assembler/pkg/policy"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Cache providers.
const (
	ProviderMemory  = "memory"
	ProviderRedis   = "redis"
	ProviderLayered = "layered"
	ProviderNone    = "none"
)

// Config is the complete process configuration.
type Config struct {
	// ListenAddr is the address the proxy listens on.
	ListenAddr string `yaml:"listen_addr"`

	// UpstreamURL is the application whose HTML responses are assembled.
	UpstreamURL string `yaml:"upstream_url"`

	// Policy names the fetch policy preset ("default" or "akamai").
	Policy string `yaml:"policy"`

	// Debug fails pages on invalid markup or too deep nesting instead of
	// dropping the offending include.
	Debug bool `yaml:"debug"`

	// ChaseRedirects overrides the preset's redirect handling when set.
	ChaseRedirects *bool `yaml:"chase_redirects"`

	Fetch FetchConfig `yaml:"fetch"`
	Cache CacheConfig `yaml:"cache"`
	Log   LogConfig   `yaml:"log"`
}

// FetchConfig configures fragment requests.
type FetchConfig struct {
	UserAgent     string        `yaml:"user_agent"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRedirects  int           `yaml:"max_redirects"`
	RetryAttempts int           `yaml:"retry_attempts"`
}

// CacheConfig configures the fragment cache.
type CacheConfig struct {
	// Provider is one of memory, redis, layered or none.
	Provider string `yaml:"provider"`

	// MaxEntries and MaxObjectSize size the in-memory LRU.
	MaxEntries    int `yaml:"max_entries"`
	MaxObjectSize int `yaml:"max_object_size"`

	// RedisURL is either host:port or a redis:// URL.
	RedisURL  string        `yaml:"redis_url"`
	RedisTTL  time.Duration `yaml:"redis_ttl"`
	KeyPrefix string        `yaml:"key_prefix"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		ListenAddr:  ":8080",
		UpstreamURL: "http://localhost:3000",
		Policy:      string(policy.PresetDefault),
		Debug:       true,
		Fetch: FetchConfig{
			UserAgent:     "esi-assembler/1.0",
			Timeout:       10 * time.Second,
			MaxRedirects:  10,
			RetryAttempts: 1,
		},
		Cache: CacheConfig{
			Provider:      ProviderMemory,
			MaxEntries:    cache.DefaultMaxEntries,
			MaxObjectSize: cache.DefaultMaxObjectSize,
			RedisURL:      "localhost:6379",
			RedisTTL:      cache.DefaultRedisTTL,
			KeyPrefix:     cache.DefaultKeyPrefix,
		},
		Log: LogConfig{
			Level: string(logging.LevelInfo),
		},
	}
}

// Load reads path (if not empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}

	str("ESI_LISTEN_ADDR", &c.ListenAddr)
	str("ESI_UPSTREAM_URL", &c.UpstreamURL)
	str("ESI_POLICY", &c.Policy)
	str("ESI_CACHE_PROVIDER", &c.Cache.Provider)
	str("REDIS_URL", &c.Cache.RedisURL)
	str("LOG_LEVEL", &c.Log.Level)

	if err := boolean("ESI_DEBUG", &c.Debug); err != nil {
		return err
	}
	if err := boolean("LOG_PRETTY", &c.Log.Pretty); err != nil {
		return err
	}
	if v, ok := lookup("ESI_CHASE_REDIRECTS"); ok && v != "" {
		chase, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ESI_CHASE_REDIRECTS: %w", err)
		}
		c.ChaseRedirects = &chase
	}
	if v, ok := lookup("ESI_FETCH_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ESI_FETCH_TIMEOUT: %w", err)
		}
		c.Fetch.Timeout = d
	}
	return nil
}

// Validate checks the configuration for impossible settings.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	u, err := url.Parse(c.UpstreamURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("upstream_url must be an absolute http(s) URL (got %q)", c.UpstreamURL)
	}
	if _, err := policy.ParsePreset(c.Policy); err != nil {
		return err
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0 (got %s)", c.Fetch.Timeout)
	}
	if c.Fetch.MaxRedirects < 0 {
		return fmt.Errorf("fetch.max_redirects must be >= 0 (got %d)", c.Fetch.MaxRedirects)
	}
	if c.Fetch.RetryAttempts < 1 {
		return fmt.Errorf("fetch.retry_attempts must be >= 1 (got %d)", c.Fetch.RetryAttempts)
	}

	switch c.Cache.Provider {
	case ProviderNone:
	case ProviderMemory, ProviderRedis, ProviderLayered:
		if c.usesMemory() {
			if c.Cache.MaxEntries <= 0 {
				return fmt.Errorf("cache.max_entries must be > 0 (got %d)", c.Cache.MaxEntries)
			}
		}
		if c.Cache.MaxObjectSize <= 0 {
			return fmt.Errorf("cache.max_object_size must be > 0 (got %d)", c.Cache.MaxObjectSize)
		}
		if c.UsesRedis() {
			if c.Cache.RedisURL == "" {
				return fmt.Errorf("cache.redis_url is required for provider %q", c.Cache.Provider)
			}
			if c.Cache.RedisTTL <= 0 {
				return fmt.Errorf("cache.redis_ttl must be > 0 (got %s)", c.Cache.RedisTTL)
			}
		}
	default:
		return fmt.Errorf("unknown cache provider %q", c.Cache.Provider)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

func (c Config) usesMemory() bool {
	return c.Cache.Provider == ProviderMemory || c.Cache.Provider == ProviderLayered
}

// UsesRedis reports whether the cache provider needs a Redis connection.
func (c Config) UsesRedis() bool {
	return c.Cache.Provider == ProviderRedis || c.Cache.Provider == ProviderLayered
}

// FetchPolicy returns the configured preset with the redirect override
// applied. The cache is attached by the caller.
func (c Config) FetchPolicy() (policy.Policy, error) {
	p, err := policy.Lookup(c.Policy)
	if err != nil {
		return policy.Policy{}, err
	}
	if c.ChaseRedirects != nil {
		p = p.WithChaseRedirects(*c.ChaseRedirects)
	}
	return p, nil
}

// RedisOptions turns RedisURL into client options.
func (c CacheConfig) RedisOptions() (*redis.Options, error) {
	if strings.Contains(c.RedisURL, "://") {
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: c.RedisURL}, nil
}

// LRUConfig returns the sizing of the in-memory cache.
func (c CacheConfig) LRUConfig() cache.LRUConfig {
	return cache.LRUConfig{
		MaxEntries:    c.MaxEntries,
		MaxObjectSize: c.MaxObjectSize,
	}
}

// RedisConfig returns the settings of the shared cache.
func (c CacheConfig) RedisConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Prefix:        c.KeyPrefix,
		TTL:           c.RedisTTL,
		MaxObjectSize: c.MaxObjectSize,
	}
}
