// Package httpapi exposes the registry's health and the process metrics
// over HTTP. Only the composition root serves it.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GoCodeAlone/alouette"
	"github.com/GoCodeAlone/alouette/logging"
)

// Registry is the part of *alouette.Registry the API reads.
type Registry interface {
	HealthStatus() alouette.HealthStatus
	ServiceNames() []string
}

type options struct {
	gatherer prometheus.Gatherer
	logger   logging.Logger
}

// Option configures the router.
type Option func(*options)

// WithGatherer selects the metrics served on /metrics. Defaults to
// prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(o *options) { o.gatherer = g }
}

// WithLogger logs every request.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewRouter returns a router serving:
//
//	GET /health    health snapshot; 503 unless initialized and healthy
//	GET /services  registered service names
//	GET /metrics   Prometheus metrics
func NewRouter(reg Registry, opts ...Option) chi.Router {
	o := options{gatherer: prometheus.DefaultGatherer}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrNop(o.logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(o.logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		status := reg.HealthStatus()
		code := http.StatusOK
		if !status.Healthy() {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status, o.logger)
	})

	r.Get("/services", func(w http.ResponseWriter, _ *http.Request) {
		names := reg.ServiceNames()
		if names == nil {
			names = []string{}
		}
		writeJSON(w, http.StatusOK, map[string][]string{"services": names}, o.logger)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{}))
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any, logger logging.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to write response", "error", err)
	}
}

func requestLogger(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "duration", time.Since(start))
		})
	}
}
