// Package metrics provides Prometheus metrics export for foldersmith.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide metrics registry.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Registry holds all foldersmith metrics on a private Prometheus registry.
type Registry struct {
	reg           *prometheus.Registry
	clones        *prometheus.CounterVec
	cloneDuration *prometheus.HistogramVec
	nodesCreated  *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		clones: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "foldersmith",
			Name:      "clone_total",
			Help:      "Clone attempts by backend and terminal status.",
		}, []string{"backend", "status"}),
		cloneDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "foldersmith",
			Name:      "clone_duration_seconds",
			Help:      "Wall time of one backend clone attempt.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"backend"}),
		nodesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "foldersmith",
			Name:      "nodes_created_total",
			Help:      "Folders and documents created in destination trees.",
		}, []string{"backend", "kind"}),
	}
	r.reg.MustRegister(r.clones, r.cloneDuration, r.nodesCreated)
	return r
}

// RecordClone records one backend clone attempt.
func (r *Registry) RecordClone(backend, status string, duration time.Duration, folders, documents int) {
	r.clones.WithLabelValues(backend, status).Inc()
	r.cloneDuration.WithLabelValues(backend).Observe(duration.Seconds())
	if folders > 0 {
		r.nodesCreated.WithLabelValues(backend, "folder").Add(float64(folders))
	}
	if documents > 0 {
		r.nodesCreated.WithLabelValues(backend, "document").Add(float64(documents))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
