package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cityatlas_requests_total",
		Help: "Total API requests by route and status class",
	}, []string{"route", "code"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cityatlas_request_duration_ms",
		Help:    "API request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"route"})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cityatlas_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})
	SyncSignalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cityatlas_sync_signals_total",
		Help: "Visited-set change signals by source (local write or storage event)",
	}, []string{"source"})
	VisitedWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cityatlas_visited_writes_total",
		Help: "Visited-set writes by operation",
	}, []string{"op"})
	VisitedLoadErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cityatlas_visited_load_errors_total",
		Help: "Visited-set reads that fell back to the empty set",
	})
	ReconcileTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cityatlas_map_reconcile_total",
		Help: "Map reconciliations by outcome (applied or deferred)",
	}, []string{"outcome"})
	MarkersPlaced = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cityatlas_map_markers",
		Help:    "Markers placed per reconciliation",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
	})
	ActiveTabs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cityatlas_active_tabs",
		Help: "Tab sessions currently held in memory",
	})
	SSEClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cityatlas_sse_clients",
		Help: "Open /events streams",
	})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(RateLimitedTotal)
	prometheus.MustRegister(SyncSignalsTotal)
	prometheus.MustRegister(VisitedWritesTotal)
	prometheus.MustRegister(VisitedLoadErrorsTotal)
	prometheus.MustRegister(ReconcileTotal)
	prometheus.MustRegister(MarkersPlaced)
	prometheus.MustRegister(ActiveTabs)
	prometheus.MustRegister(SSEClients)
}

// 暴露默认注册表，由主入口挂载到 /metrics
func Handler() http.Handler { return promhttp.Handler() }
