// Package filter provides HTTP middleware that expands ESI includes in HTML
// responses of the wrapped handler.
//
// Only complete 200 responses with Content-Type text/html and no content
// encoding are processed; everything else is streamed through untouched.
package filter

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Sternrassler/esi-assembler/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

var responsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "esi_filter_responses_total",
	Help: "Total responses seen by the ESI filter by result (passthrough, unchanged, expanded, error)",
}, []string{"result"})

// Resolver expands the includes of a document. *esi.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context, body []byte, origin client.Origin) ([]byte, bool, error)
}

// Filter wraps handlers with include expansion.
type Filter struct {
	resolver Resolver
	logger   zerolog.Logger
}

// New creates a filter that expands responses with resolver.
func New(resolver Resolver) *Filter {
	return &Filter{
		resolver: resolver,
		logger:   log.With().Str("component", "filter").Logger(),
	}
}

// Handler wraps next. It has the signature of chi and net/http middleware.
func (f *Filter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			// no body to expand
			responsesTotal.WithLabelValues("passthrough").Inc()
			next.ServeHTTP(w, r)
			return
		}

		buf := newResponseBuffer(w)
		next.ServeHTTP(buf, r)

		if !buf.wroteHeaders {
			// nothing written, net/http sends an empty 200
			copyHeader(w.Header(), buf.header)
			return
		}
		if !buf.capture {
			responsesTotal.WithLabelValues("passthrough").Inc()
			return
		}

		body := buf.body.Bytes()
		expanded, changed, err := f.resolver.Resolve(r.Context(), body, client.OriginFromRequest(r))
		if err != nil {
			responsesTotal.WithLabelValues("error").Inc()
			f.requestLogger(r).Error().
				Err(err).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("Include resolution failed")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		result := "unchanged"
		if changed {
			result = "expanded"
			body = expanded
		}
		responsesTotal.WithLabelValues(result).Inc()

		copyHeader(w.Header(), buf.header)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		if changed {
			// validators describe the unexpanded document
			w.Header().Del("ETag")
			w.Header().Del("Content-MD5")
		}
		w.WriteHeader(buf.status)
		if _, err := w.Write(body); err != nil {
			f.requestLogger(r).Debug().Err(err).Msg("Could not write response body to client")
		}
	})
}

// requestLogger prefers the logger attached by hlog.NewHandler.
func (f *Filter) requestLogger(r *http.Request) *zerolog.Logger {
	logger := hlog.FromRequest(r)
	if logger.GetLevel() == zerolog.Disabled {
		return &f.logger
	}
	return logger
}
