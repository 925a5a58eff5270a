package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "visitrack",
		Name:      "runs_total",
		Help:      "Total number of matching runs by terminal status",
	}, []string{"status"})

	AssociationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "visitrack",
		Name:      "associations_total",
		Help:      "Total number of associations decided",
	}, []string{"decision"})

	JourneysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "visitrack",
		Name:      "journeys_total",
		Help:      "Total number of journeys built",
	}, []string{"status"})

	ConflictsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "visitrack",
		Name:      "conflicts_resolved_total",
		Help:      "Total number of target conflicts resolved",
	})

	InvalidTracklets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "visitrack",
		Name:      "invalid_tracklets_total",
		Help:      "Tracklets excluded from matching because of input defects",
	}, []string{"reason"})

	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "visitrack",
		Name:      "phase_duration_seconds",
		Help:      "Duration of run phases",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"phase"})

	FetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "visitrack",
		Name:      "fetch_retries_total",
		Help:      "Retries of the batch input fetch",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "visitrack",
		Name:      "queue_depth",
		Help:      "Number of pending run tasks in queue",
	})

	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "visitrack",
		Name:      "active_runs",
		Help:      "Number of runs currently executing",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "visitrack",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "visitrack",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
