// Package client fetches ESI include fragments over HTTP, applying the
// SSL, header-forwarding and redirect rules of a fetch policy and reading
// through the policy's fragment cache.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/esi-assembler/pkg/cache"
	"github.com/Sternrassler/esi-assembler/pkg/policy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for fragment fetches.
var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esi_fragment_fetches_total",
		Help: "Total fragment fetches by policy and result",
	}, []string{"policy", "result"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "esi_fragment_fetch_duration_seconds",
		Help:    "Fragment fetch duration in seconds by policy (network fetches only)",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"policy"})

	fetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esi_fragment_fetch_errors_total",
		Help: "Total fragment fetch errors by class",
	}, []string{"class"})

	fetchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esi_fragment_fetch_retries_total",
		Help: "Total number of fetch retry attempts by error class",
	}, []string{"error_class"})

	fetchRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esi_fragment_fetch_retry_exhausted_total",
		Help: "Total number of times fetch retries were exhausted by error class",
	}, []string{"error_class"})
)

// Config holds the fetcher configuration.
type Config struct {
	// UserAgent sent with every fragment request
	UserAgent string

	// Timeout bounds a single fragment request, including reading the body
	Timeout time.Duration

	// MaxRedirects bounds redirect chasing when the policy enables it
	MaxRedirects int

	// Retry controls retries of network errors and 5xx responses
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		UserAgent:    "esi-assembler/1.0",
		Timeout:      10 * time.Second,
		MaxRedirects: 10,
		Retry:        DefaultRetryConfig(),
	}
}

// Fetcher resolves include URLs to fragment bodies.
// It is safe for concurrent use.
type Fetcher struct {
	httpClient *http.Client
	policy     policy.Policy
	config     Config
	logger     zerolog.Logger
}

// New creates a fetcher for p.
func New(p policy.Policy, cfg Config) (*Fetcher, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}
	if cfg.MaxRedirects < 0 {
		return nil, fmt.Errorf("max_redirects must be >= 0 (got %d)", cfg.MaxRedirects)
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}

	logger := log.With().
		Str("component", "fetcher").
		Str("policy", p.String()).
		Logger()

	f := &Fetcher{
		policy: p,
		config: cfg,
		logger: logger,
	}
	f.SetHTTPClient(&http.Client{Timeout: cfg.Timeout})
	return f, nil
}

// SetHTTPClient sets the transport client (for testing or custom TLS).
// Redirects are never followed by the client itself; the fetch policy
// decides whether to chase them.
func (f *Fetcher) SetHTTPClient(client *http.Client) {
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	f.httpClient = &c
}

// Policy returns the fetch policy.
func (f *Fetcher) Policy() policy.Policy {
	return f.policy
}

// Fetch resolves rawURL against the inbound request and returns the
// fragment body.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, origin Origin) ([]byte, error) {
	target, err := resolveURL(origin, rawURL)
	if err != nil {
		fetchErrorsTotal.WithLabelValues("url").Inc()
		return nil, err
	}
	return f.fetch(ctx, target, origin, 0)
}

func (f *Fetcher) fetch(ctx context.Context, target *url.URL, origin Origin, redirects int) ([]byte, error) {
	if origin.RequireSSL() && target.Scheme != "https" {
		fetchErrorsTotal.WithLabelValues("ssl").Inc()
		return nil, &SSLError{URL: target.String()}
	}

	key := target.String()
	if store := f.policy.Cache; store != nil {
		body, err := store.Get(ctx, key)
		if err == nil {
			fetchesTotal.WithLabelValues(f.policy.String(), "cache_hit").Inc()
			f.logger.Debug().Str("url", key).Bool("cache_hit", true).Msg("Fragment served from cache")
			return body, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			f.logger.Warn().Err(err).Str("url", key).Msg("Cache get error")
		}
	}

	res, err := f.get(ctx, target, origin.ForwardHeaders(target))
	if err != nil {
		fetchErrorsTotal.WithLabelValues(string(classify(err))).Inc()
		fetchesTotal.WithLabelValues(f.policy.String(), "error").Inc()
		return nil, err
	}

	switch {
	case res.statusCode >= 200 && res.statusCode < 300:
		fetchesTotal.WithLabelValues(f.policy.String(), strconv.Itoa(res.statusCode)).Inc()
		if store := f.policy.Cache; store != nil {
			if err := store.Set(ctx, key, res.body); err != nil {
				f.logger.Warn().Err(err).Str("url", key).Msg("Failed to cache fragment")
			}
		}
		return res.body, nil

	case f.policy.ChaseRedirects && isChasedRedirect(res.statusCode):
		location := res.header.Get("Location")
		if location == "" {
			break
		}
		if redirects >= f.config.MaxRedirects {
			fetchErrorsTotal.WithLabelValues("redirect").Inc()
			return nil, fmt.Errorf("%w: %s", ErrTooManyRedirects, key)
		}
		next, err := target.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("parse redirect location %q: %w", location, err)
		}
		f.logger.Debug().
			Str("url", key).
			Str("location", next.String()).
			Int("status", res.statusCode).
			Msg("Chasing redirect")
		return f.fetch(ctx, next, origin, redirects+1)
	}

	err = &UpstreamError{URL: key, StatusCode: res.statusCode}
	fetchErrorsTotal.WithLabelValues(string(classify(err))).Inc()
	fetchesTotal.WithLabelValues(f.policy.String(), strconv.Itoa(res.statusCode)).Inc()
	f.logger.Warn().
		Str("url", key).
		Int("status", res.statusCode).
		Msg("Fragment request failed")
	return nil, err
}

type response struct {
	statusCode int
	header     http.Header
	body       []byte
}

// get performs the GET request with retries for network errors and 5xx.
// Other statuses are returned to the caller as a response.
func (f *Fetcher) get(ctx context.Context, target *url.URL, header http.Header) (*response, error) {
	var res *response
	err := retryWithBackoff(ctx, f.config.Retry, f.logger, func() error {
		var err error
		res, err = f.do(ctx, target, header)
		if err != nil {
			return err
		}
		if res.statusCode >= 500 {
			return &UpstreamError{URL: target.String(), StatusCode: res.statusCode}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (f *Fetcher) do(ctx context.Context, target *url.URL, header http.Header) (*response, error) {
	startTime := time.Now()
	defer func() {
		fetchDuration.WithLabelValues(f.policy.String()).Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for name, values := range header {
		req.Header[name] = values
	}
	if f.config.UserAgent != "" {
		req.Header.Set("User-Agent", f.config.UserAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.logger.Debug().Err(err).Str("url", target.String()).Msg("HTTP request failed")
		return nil, err
	}
	defer resp.Body.Close()

	res := &response{
		statusCode: resp.StatusCode,
		header:     resp.Header,
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		res.body, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
	} else {
		// finish the response so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
	}

	f.logger.Debug().
		Str("url", target.String()).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(startTime)).
		Msg("Fetched fragment")

	return res, nil
}

func isChasedRedirect(status int) bool {
	return status == http.StatusMovedPermanently || status == http.StatusFound
}

// resolveURL makes rawURL absolute relative to the inbound request URL.
func resolveURL(origin Origin, rawURL string) (*url.URL, error) {
	var (
		target *url.URL
		err    error
	)
	if origin.URL != nil {
		target, err = origin.URL.Parse(rawURL)
	} else {
		target, err = url.Parse(rawURL)
	}
	if err != nil {
		return nil, fmt.Errorf("parse include url %q: %w", rawURL, err)
	}

	switch target.Scheme {
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported include url %q: scheme must be http or https", rawURL)
	}
	if target.Host == "" {
		return nil, fmt.Errorf("unsupported include url %q: no host", rawURL)
	}
	target.Fragment = ""
	return target, nil
}
