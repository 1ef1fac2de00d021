package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ridehail"

var (
	AssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "assignments_total", Help: "Assignment attempts by outcome"},
		[]string{"outcome"},
	)
	AssignLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "assign_latency_seconds",
		Help:      "Latency of a full assign call",
		Buckets:   prometheus.DefBuckets,
	})
	AcceptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "accepts_total", Help: "Accept attempts by outcome"},
		[]string{"outcome"},
	)
	PresenceReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "presence_reports_total", Help: "Presence upserts by reported status"},
		[]string{"status"},
	)
	ReachableCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "reachable_candidates",
		Help:      "Number of reachable drivers returned per query",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
	})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
