// Package prometheus exposes the bridge's call metrics over HTTP for
// Prometheus to scrape.
package prometheus

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AltairaLabs/CareBridge/logger"
)

const readHeaderTimeout = 10 * time.Second

// Exporter serves the metrics registry at /metrics, with a plain /health
// endpoint beside it for liveness probes.
type Exporter struct {
	registry *prometheus.Registry
	server   *http.Server

	mu      sync.Mutex
	started bool
}

// NewExporter creates an exporter preloaded with the bridge's call metrics
// and the Go runtime collectors.
func NewExporter(addr string) *Exporter {
	reg := prometheus.NewRegistry()
	for _, c := range allMetrics {
		reg.MustRegister(c)
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewExporterWithRegistry(addr, reg)
}

// NewExporterWithRegistry creates an exporter over a caller-owned registry.
func NewExporterWithRegistry(addr string, registry *prometheus.Registry) *Exporter {
	e := &Exporter{registry: registry}

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})

	e.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return e
}

// Start serves until Shutdown, returning http.ErrServerClosed on a clean
// stop. Calling Start on a running exporter is a no-op.
func (e *Exporter) Start() error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.mu.Unlock()

	logger.Info("metrics exporter listening", "addr", e.server.Addr)
	return e.server.ListenAndServe()
}

// Shutdown stops the exporter, waiting for in-flight scrapes up to the
// context deadline.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return nil
	}
	e.started = false
	return e.server.Shutdown(ctx)
}

// Handler returns the scrape handler alone, for mounting on an existing
// server.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
