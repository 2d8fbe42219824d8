package esi

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/esi-assembler/pkg/client"
	"github.com/Sternrassler/esi-assembler/pkg/policy"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultHardLimit is the nesting depth at which expansion stops no matter
// what the policy allows.
const DefaultHardLimit = 64

// Fetcher loads the body of an include URL. *client.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, origin client.Origin) ([]byte, error)
	Policy() policy.Policy
}

// Config holds the resolver configuration.
type Config struct {
	// Debug turns invalid markup and policy depth violations into errors.
	// Otherwise invalid tags are dropped and depth is not limited by policy.
	Debug bool

	// HardLimit caps nesting regardless of policy and mode. Zero selects
	// DefaultHardLimit.
	HardLimit int
}

// Resolver expands <esi:include/> directives. It holds no per-request state
// and is safe for concurrent use.
type Resolver struct {
	fetcher   Fetcher
	policy    policy.Policy
	debug     bool
	hardLimit int
	logger    zerolog.Logger
}

// New creates a resolver that loads fragments through fetcher and applies
// the fetcher's policy.
func New(fetcher Fetcher, cfg Config) (*Resolver, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.HardLimit < 0 {
		return nil, fmt.Errorf("hard_limit must be >= 0 (got %d)", cfg.HardLimit)
	}
	if cfg.HardLimit == 0 {
		cfg.HardLimit = DefaultHardLimit
	}

	p := fetcher.Policy()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	return &Resolver{
		fetcher:   fetcher,
		policy:    p,
		debug:     cfg.Debug,
		hardLimit: cfg.HardLimit,
		logger: log.With().
			Str("component", "resolver").
			Str("policy", p.String()).
			Bool("debug", cfg.Debug).
			Logger(),
	}, nil
}

// Resolve expands every include in body for the inbound request described by
// origin. The boolean is false when body held nothing to expand; the
// returned slice is then nil and the caller keeps the original body.
//
// On error no partial output is returned.
func (r *Resolver) Resolve(ctx context.Context, body []byte, origin client.Origin) ([]byte, bool, error) {
	startTime := time.Now()
	defer func() {
		resolveDuration.Observe(time.Since(startTime).Seconds())
	}()

	out, changed, err := r.resolve(ctx, body, origin, 0)
	switch {
	case err != nil:
		resolutionsTotal.WithLabelValues("error").Inc()
		return nil, false, err
	case !changed:
		resolutionsTotal.WithLabelValues("unchanged").Inc()
		return nil, false, nil
	default:
		resolutionsTotal.WithLabelValues("expanded").Inc()
		return out, true, nil
	}
}

func (r *Resolver) resolve(ctx context.Context, body []byte, origin client.Origin, depth int) ([]byte, bool, error) {
	if r.debug && r.policy.Exceeds(depth) {
		return nil, false, &RecursionError{Depth: depth, Body: body}
	}
	if depth > r.hardLimit {
		if r.debug {
			return nil, false, &RecursionError{Depth: depth, Body: body}
		}
		r.logger.Warn().
			Int("depth", depth).
			Int("limit", r.hardLimit).
			Msg("Nesting limit reached, leaving fragment unexpanded")
		return nil, false, nil
	}
	includeDepth.Observe(float64(depth))

	var (
		out     []byte
		index   int
		changed bool
		comment Match // latest esi comment opened before the current record
	)
	for _, m := range Scan(body) {
		if m.Kind == KindComment {
			comment = m
			continue
		}
		if comment.Kind == KindComment && comment.Contains(m) {
			includesTotal.WithLabelValues("commented").Inc()
			continue
		}

		out = append(out, body[index:m.Start]...)
		index = m.End
		changed = true

		d := m.Directive
		if !d.Valid() {
			includesTotal.WithLabelValues("invalid").Inc()
			if r.debug {
				return nil, false, &MarkupError{Markup: d.Raw}
			}
			r.logger.Debug().Str("markup", d.Raw).Msg("Dropping invalid include")
			continue
		}

		content, err := r.include(ctx, d, origin, depth)
		if err != nil {
			return nil, false, err
		}

		if len(content) > 0 {
			nested, ok, err := r.resolve(ctx, content, origin, depth+1)
			if err != nil {
				return nil, false, err
			}
			if ok {
				content = nested
			}
		}
		out = append(out, content...)
	}

	if !changed {
		return nil, false, nil
	}
	out = append(out, body[index:]...)
	return out, true, nil
}

// include fetches src, falling back to alt and then to empty content when
// onerror="continue" is set. When both src and alt fail the alt error wins.
func (r *Resolver) include(ctx context.Context, d Directive, origin client.Origin, depth int) ([]byte, error) {
	content, err := r.fetcher.Fetch(ctx, d.Src, origin)
	if err == nil {
		includesTotal.WithLabelValues("src").Inc()
		r.logger.Debug().Str("src", d.Src).Int("depth", depth).Int("bytes", len(content)).Msg("Included fragment")
		return content, nil
	}
	failed, url := err, d.Src

	if d.Alt != "" {
		content, err = r.fetcher.Fetch(ctx, d.Alt, origin)
		if err == nil {
			includesTotal.WithLabelValues("alt").Inc()
			r.logger.Warn().
				Err(failed).
				Str("src", d.Src).
				Str("alt", d.Alt).
				Int("depth", depth).
				Msg("Include failed, used alt")
			return content, nil
		}
		failed, url = err, d.Alt
	}

	if d.ContinueOnError() {
		includesTotal.WithLabelValues("continue").Inc()
		r.logger.Warn().
			Err(failed).
			Str("src", d.Src).
			Int("depth", depth).
			Msg("Include failed, continuing without it")
		return nil, nil
	}

	includesTotal.WithLabelValues("failed").Inc()
	return nil, fmt.Errorf("include %s: %w", url, failed)
}
