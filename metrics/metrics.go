// Package metrics exposes Prometheus metrics for a service runtime on a
// dedicated listen address.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer owns a Prometheus registry and serves it over HTTP.
type MetricsServer struct {
	registry *prometheus.Registry
	srv      *http.Server

	// RequestsTotal counts handled HTTP requests by method, path and status.
	RequestsTotal *prometheus.CounterVec
}

// New creates a metrics server for the given namespace. addr may be empty,
// in which case the metrics are collected but never served.
func New(namespace, addr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	requestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Handled HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})
	registry.MustRegister(requestsTotal)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &MetricsServer{
		registry: registry,
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		RequestsTotal: requestsTotal,
	}, nil
}

// ListenAndServe starts serving the registry on the configured address.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
