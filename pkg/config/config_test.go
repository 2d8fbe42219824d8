package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "esi.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config invalid: %v", err)
	}
	if !cfg.Debug {
		t.Error("Debug should default to true")
	}
	if cfg.Cache.Provider != ProviderMemory {
		t.Errorf("Provider = %q, want %q", cfg.Cache.Provider, ProviderMemory)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
listen_addr: ":9090"
upstream_url: "http://app:3000"
policy: akamai
debug: false
chase_redirects: true
fetch:
  timeout: 2s
  retry_attempts: 3
cache:
  provider: layered
  max_entries: 50
  redis_url: "redis://cache:6379/1"
  redis_ttl: 1m
log:
  level: debug
  pretty: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ListenAddr != ":9090" || cfg.UpstreamURL != "http://app:3000" {
		t.Errorf("Addresses = %q, %q", cfg.ListenAddr, cfg.UpstreamURL)
	}
	if cfg.Debug {
		t.Error("Debug should be false")
	}
	if cfg.Fetch.Timeout != 2*time.Second || cfg.Fetch.RetryAttempts != 3 {
		t.Errorf("Fetch = %+v", cfg.Fetch)
	}
	// unset fields keep their defaults
	if cfg.Fetch.MaxRedirects != 10 {
		t.Errorf("MaxRedirects = %d, want default 10", cfg.Fetch.MaxRedirects)
	}
	if cfg.Cache.MaxEntries != 50 || cfg.Cache.RedisTTL != time.Minute {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if !cfg.UsesRedis() {
		t.Error("Layered provider uses redis")
	}

	p, err := cfg.FetchPolicy()
	if err != nil {
		t.Fatalf("FetchPolicy failed: %v", err)
	}
	if p.String() != "akamai" || !p.ChaseRedirects || p.MaxNestedIncludes != 5 {
		t.Errorf("FetchPolicy() = %+v", p)
	}

	opts, err := cfg.Cache.RedisOptions()
	if err != nil {
		t.Fatalf("RedisOptions failed: %v", err)
	}
	if opts.Addr != "cache:6379" || opts.DB != 1 {
		t.Errorf("RedisOptions() = %s db %d", opts.Addr, opts.DB)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
policy: default
cache:
  provider: memory
`)
	t.Setenv("ESI_POLICY", "akamai")
	t.Setenv("ESI_CACHE_PROVIDER", "none")
	t.Setenv("ESI_DEBUG", "false")
	t.Setenv("ESI_CHASE_REDIRECTS", "true")
	t.Setenv("ESI_FETCH_TIMEOUT", "750ms")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Policy != "akamai" || cfg.Cache.Provider != ProviderNone || cfg.Debug {
		t.Errorf("Env overrides not applied: %+v", cfg)
	}
	if cfg.ChaseRedirects == nil || !*cfg.ChaseRedirects {
		t.Error("ESI_CHASE_REDIRECTS not applied")
	}
	if cfg.Fetch.Timeout != 750*time.Millisecond {
		t.Errorf("Timeout = %s", cfg.Fetch.Timeout)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log level = %q", cfg.Log.Level)
	}
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "debug", env: map[string]string{"ESI_DEBUG": "maybe"}},
		{name: "pretty", env: map[string]string{"LOG_PRETTY": "yes please"}},
		{name: "chase", env: map[string]string{"ESI_CHASE_REDIRECTS": "sometimes"}},
		{name: "timeout", env: map[string]string{"ESI_FETCH_TIMEOUT": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			lookup := func(key string) (string, bool) {
				v, ok := tt.env[key]
				return v, ok
			}
			if err := cfg.applyEnv(lookup); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "policy: [unclosed")); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(*Config)
		errorMsg string
	}{
		{
			name:     "unknown policy",
			modify:   func(c *Config) { c.Policy = "varnish" },
			errorMsg: `unknown policy "varnish"`,
		},
		{
			name:     "unknown provider",
			modify:   func(c *Config) { c.Cache.Provider = "memcached" },
			errorMsg: `unknown cache provider "memcached"`,
		},
		{
			name:     "zero cache entries",
			modify:   func(c *Config) { c.Cache.MaxEntries = 0 },
			errorMsg: "cache.max_entries must be > 0 (got 0)",
		},
		{
			name:     "negative object size",
			modify:   func(c *Config) { c.Cache.MaxObjectSize = -1 },
			errorMsg: "cache.max_object_size must be > 0 (got -1)",
		},
		{
			name: "redis without url",
			modify: func(c *Config) {
				c.Cache.Provider = ProviderRedis
				c.Cache.RedisURL = ""
			},
			errorMsg: `cache.redis_url is required for provider "redis"`,
		},
		{
			name:     "relative upstream",
			modify:   func(c *Config) { c.UpstreamURL = "/app" },
			errorMsg: `upstream_url must be an absolute http(s) URL (got "/app")`,
		},
		{
			name:     "zero timeout",
			modify:   func(c *Config) { c.Fetch.Timeout = 0 },
			errorMsg: "fetch.timeout must be > 0 (got 0s)",
		},
		{
			name:     "zero retry attempts",
			modify:   func(c *Config) { c.Fetch.RetryAttempts = 0 },
			errorMsg: "fetch.retry_attempts must be >= 1 (got 0)",
		},
		{
			name:     "bad log level",
			modify:   func(c *Config) { c.Log.Level = "loud" },
			errorMsg: `unknown log level "loud"`,
		},
		{
			name: "no cache ignores sizes",
			modify: func(c *Config) {
				c.Cache.Provider = ProviderNone
				c.Cache.MaxEntries = 0
			},
		},
		{
			name: "redis ignores entry count",
			modify: func(c *Config) {
				c.Cache.Provider = ProviderRedis
				c.Cache.MaxEntries = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Error = %v, want %q", err, tt.errorMsg)
			}
		})
	}
}

func TestCacheConfig_Conversions(t *testing.T) {
	c := Default().Cache

	lru := c.LRUConfig()
	if lru.MaxEntries != c.MaxEntries || lru.MaxObjectSize != c.MaxObjectSize {
		t.Errorf("LRUConfig() = %+v", lru)
	}

	rc := c.RedisConfig()
	if rc.Prefix != c.KeyPrefix || rc.TTL != c.RedisTTL {
		t.Errorf("RedisConfig() = %+v", rc)
	}

	opts, err := c.RedisOptions()
	if err != nil || opts.Addr != "localhost:6379" {
		t.Errorf("RedisOptions() = %+v, %v", opts, err)
	}
}
