// Package metrics provides Prometheus metrics for the node.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge

	quorumFailures  *prometheus.CounterVec
	replicaRPCTotal *prometheus.CounterVec
	ringSize        prometheus.Gauge
}

var globalMetrics *Metrics

// NewMetrics creates and registers the node metrics. Registration with
// the default registry happens once per process.
func NewMetrics() *Metrics {
	if globalMetrics != nil {
		return globalMetrics
	}

	globalMetrics = &Metrics{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftkv_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "driftkv_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		requestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "driftkv_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),
		quorumFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftkv_quorum_failures_total",
				Help: "Total number of operations that missed their quorum",
			},
			[]string{"operation"},
		),
		replicaRPCTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftkv_replica_rpc_total",
				Help: "Total number of inter-node RPCs by verb and outcome",
			},
			[]string{"verb", "outcome"},
		),
		ringSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "driftkv_ring_size",
				Help: "Number of nodes in the local ring snapshot",
			},
		),
	}

	return globalMetrics
}

// RecordHTTPRequest records metrics for an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	m.requestsTotal.WithLabelValues(method, path, status).Inc()
	m.requestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordQuorumFailure counts a missed quorum for operation.
func (m *Metrics) RecordQuorumFailure(operation string) {
	m.quorumFailures.WithLabelValues(operation).Inc()
}

// RecordReplicaRPC counts an inter-node RPC outcome.
func (m *Metrics) RecordReplicaRPC(verb string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.replicaRPCTotal.WithLabelValues(verb, outcome).Inc()
}

// SetRingSize sets the ring size gauge.
func (m *Metrics) SetRingSize(n int) {
	m.ringSize.Set(float64(n))
}

// MetricsServer serves Prometheus metrics on a separate port.
type MetricsServer struct {
	server *http.Server
	logger *zap.Logger
}

// NewMetricsServer creates a metrics server.
func NewMetricsServer(port int, path string, logger *zap.Logger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	return &MetricsServer{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
		logger: logger,
	}
}

// Start starts the metrics server.
func (ms *MetricsServer) Start() error {
	ms.logger.Info("starting metrics server", zap.String("addr", ms.server.Addr))
	return ms.server.ListenAndServe()
}

// Shutdown gracefully shuts down the metrics server.
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}

// Middleware records request count, latency, and in-flight gauge.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.requestsInFlight.Inc()
			defer m.requestsInFlight.Dec()

			start := time.Now()
			rw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			m.RecordHTTPRequest(r.Method, r.URL.Path, rw.statusCode, time.Since(start))
		})
	}
}

// metricsResponseWriter wraps http.ResponseWriter to capture the status.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code.
func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
