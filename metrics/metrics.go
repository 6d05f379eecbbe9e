// Package metrics exposes Prometheus collectors for the user API and the
// persistence writer. They are served on their own listener so the API
// surface only ever answers /users routes.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors and the registry they are exposed from.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	persistTotal    *prometheus.CounterVec
	persistDuration prometheus.Histogram
	usersStored     prometheus.Gauge
}

// New returns a Metrics instance with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	return &Metrics{
		registry: reg,

		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "users_http_requests_total",
				Help: "HTTP requests by method, route and status code.",
			}, []string{"method", "route", "code"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "users_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route.",
				Buckets: prometheus.DefBuckets,
			}, []string{"method", "route"},
		),
		persistTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "users_persist_total",
				Help: "Collection snapshot writes by result (ok/error).",
			}, []string{"result"},
		),
		persistDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "users_persist_duration_seconds",
				Help:    "Time taken to write a collection snapshot.",
				Buckets: prometheus.DefBuckets,
			},
		),
		usersStored: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "users_persisted_records",
				Help: "Number of records in the last successfully written snapshot.",
			},
		),
	}
}

// Middleware records request counts and latency. Unmatched requests are
// grouped under the "unmatched" route label.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// ObservePersist matches store.SaveHook.
func (m *Metrics) ObservePersist(records int, took time.Duration, err error) {
	m.persistDuration.Observe(took.Seconds())
	if err != nil {
		m.persistTotal.WithLabelValues("error").Inc()
		return
	}
	m.persistTotal.WithLabelValues("ok").Inc()
	m.usersStored.Set(float64(records))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Run serves /metrics on address until ctx is cancelled.
func (m *Metrics) Run(ctx context.Context, address string) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())

	srv := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srvContext, cancelFn := context.WithCancel(ctx)
	defer cancelFn()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics service exited", "address", address, "error", err)
		}
		cancelFn()
	}()
	slog.Info("started metrics service", "address", address)

	<-srvContext.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	slog.Debug("metrics service shut down")
}
