// Package metrics exposes the Prometheus registry of the proxy and the
// inbound HTTP metrics. Upstream, aggregation and health metrics are defined
// in their own packages (portal, batch, health) and registered via promauto.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// All metrics are registered with the default registry via promauto in their
// respective packages.

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dkhp_http_requests_total",
		Help: "Total inbound requests by route, method and status",
	}, []string{"route", "method", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dkhp_http_request_duration_seconds",
		Help:    "Inbound request duration in seconds by route",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"route"})
)

// Handler returns the /metrics handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTP records one inbound request. route is the matched route pattern,
// never the raw path, to keep label cardinality bounded.
func ObserveHTTP(route, method string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// Metrics Documentation
//
// HTTP Metrics (pkg/metrics):
//   - dkhp_http_requests_total{route, method, status} (Counter): Inbound requests
//   - dkhp_http_request_duration_seconds{route} (Histogram): Inbound request duration
//
// Upstream Metrics (pkg/portal):
//   - dkhp_upstream_requests_total{endpoint, status} (Counter): Portal calls by endpoint and HTTP status
//   - dkhp_upstream_request_duration_seconds{endpoint} (Histogram): Portal call duration
//   - dkhp_upstream_errors_total{class} (Counter): Failed calls by class (client, server, network, malformed)
//
// Batch Metrics (pkg/batch):
//   - dkhp_aggregate_waves_total (Counter): Subject waves processed
//   - dkhp_aggregate_degraded_total{stage} (Counter): Sub-fetches replaced by empty results
//   - dkhp_aggregate_duration_seconds (Histogram): Full aggregation duration
//   - dkhp_aggregate_records (Histogram): Records per aggregation
//   - dkhp_registrations_total{outcome} (Counter): Registration attempts (success, rejected, error)
//
// Health Metrics (pkg/health):
//   - dkhp_upstream_consecutive_failures (Gauge): Consecutive failed portal calls
//   - dkhp_health_write_errors_total (Counter): Failed health state writes
//   - dkhp_health_dropped_total (Counter): Call outcomes dropped because the health writer fell behind
//
// Example Prometheus Queries:
//
//   # Portal Error Rate
//   sum(rate(dkhp_upstream_errors_total[5m])) by (class)
//
//   # Degraded Aggregations
//   rate(dkhp_aggregate_degraded_total[5m])
//
//   # P95 Aggregation Latency
//   histogram_quantile(0.95, rate(dkhp_aggregate_duration_seconds_bucket[5m]))
//
//   # Registration Success Ratio
//   sum(rate(dkhp_registrations_total{outcome="success"}[5m])) /
//   sum(rate(dkhp_registrations_total[5m]))
