package esi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esi_resolutions_total",
		Help: "Total document resolutions by result (unchanged, expanded, error)",
	}, []string{"result"})

	resolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "esi_resolve_duration_seconds",
		Help:    "Time to resolve a document including all nested fetches",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	includesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esi_includes_total",
		Help: "Total include directives by outcome",
	}, []string{"outcome"}) // src, alt, continue, invalid, commented, failed

	includeDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "esi_include_depth",
		Help:    "Nesting depth of resolved bodies",
		Buckets: []float64{0, 1, 2, 3, 4, 5, 8, 16, 32, 64},
	})
)
