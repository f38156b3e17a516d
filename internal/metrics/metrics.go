package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors used across songscope.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	rpcCallsTotal   *prometheus.CounterVec
	rpcCallDuration *prometheus.HistogramVec

	cacheLookupsTotal *prometheus.CounterVec

	analyticsResultsTotal *prometheus.CounterVec
	analyticsDuration     prometheus.Histogram

	tradesIndexedTotal  *prometheus.CounterVec
	notificationsTotal  *prometheus.CounterVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates collectors on the given registry.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		rpcCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "songscope_rpc_calls_total",
				Help: "Total number of chain RPC calls by method and status",
			},
			[]string{"method", "status"},
		),
		rpcCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "songscope_rpc_call_duration_seconds",
				Help:    "Duration of chain RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method"},
		),
		cacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "songscope_cache_lookups_total",
				Help: "Result cache lookups by outcome (hit, miss, bypass, refresh)",
			},
			[]string{"outcome"},
		),
		analyticsResultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "songscope_analytics_results_total",
				Help: "Price analytics computations by producing strategy state",
			},
			[]string{"source"},
		),
		analyticsDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "songscope_analytics_duration_seconds",
				Help:    "Duration of uncached price analytics computations",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		tradesIndexedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "songscope_trades_indexed_total",
				Help: "Trade index requests by outcome and trade type",
			},
			[]string{"outcome", "trade_type"},
		),
		notificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "songscope_notifications_total",
				Help: "Trade notifications published or received",
			},
			[]string{"direction", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "songscope_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "songscope_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 10},
			},
			[]string{"handler", "method"},
		),
	}
}

// RecordRPCCall records a chain RPC call with its duration in seconds.
func (m *Metrics) RecordRPCCall(method string, err error, duration float64) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.rpcCallsTotal.WithLabelValues(method, status).Inc()
	m.rpcCallDuration.WithLabelValues(method).Observe(duration)
}

// RecordCacheLookup records a result cache lookup outcome.
func (m *Metrics) RecordCacheLookup(outcome string) {
	if m == nil {
		return
	}
	m.cacheLookupsTotal.WithLabelValues(outcome).Inc()
}

// RecordAnalytics records a computed analytics result.
func (m *Metrics) RecordAnalytics(source string, duration float64) {
	if m == nil {
		return
	}
	m.analyticsResultsTotal.WithLabelValues(source).Inc()
	m.analyticsDuration.Observe(duration)
}

// RecordTradeIndexed records an index request outcome (inserted, existing, error).
func (m *Metrics) RecordTradeIndexed(outcome, tradeType string) {
	if m == nil {
		return
	}
	m.tradesIndexedTotal.WithLabelValues(outcome, tradeType).Inc()
}

// RecordNotification records a published or received trade notification.
func (m *Metrics) RecordNotification(direction string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.notificationsTotal.WithLabelValues(direction, status).Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(handler, method, status string, duration float64) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
	m.httpRequestDuration.WithLabelValues(handler, method).Observe(duration)
}
