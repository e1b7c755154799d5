// Package metrics exposes dynalock's Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry serves the process-wide default registry, where the lock
// counters and Go runtime collectors live, together with the management
// request metrics registered here.
type Registry struct {
	registry *prometheus.Registry
	gatherer prometheus.Gatherer
}

// NewRegistry creates a registry holding the management request metrics.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(managementRequestDuration)
	reg.MustRegister(managementRequestsTotal)

	return &Registry{
		registry: reg,
		gatherer: prometheus.Gatherers{prometheus.DefaultGatherer, reg},
	}
}

// Register adds a collector to the local registry.
func (r *Registry) Register(collector prometheus.Collector) error {
	return r.registry.Register(collector)
}

// Handler exposes all metrics in Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Gatherer returns the combined gatherer.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.gatherer
}
