package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oceanlens",
		Name:      "submissions_total",
		Help:      "Detection submissions by outcome",
	}, []string{"outcome"}) // succeeded, failed, invalid, rejected, superseded

	SubmissionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "oceanlens",
		Name:      "submission_duration_seconds",
		Help:      "Duration of the remote create-detection call",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	LivePreviews = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "oceanlens",
		Name:      "live_previews",
		Help:      "Number of preview references currently issued",
	})

	PreviewsReleased = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "oceanlens",
		Name:      "previews_released_total",
		Help:      "Total number of preview references released",
	})

	CacheReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oceanlens",
		Name:      "cache_reads_total",
		Help:      "Cache reads by resource kind and result",
	}, []string{"kind", "result"}) // hit, refetch, error

	CacheInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oceanlens",
		Name:      "cache_invalidations_total",
		Help:      "Cache invalidations by resource kind and origin",
	}, []string{"kind", "origin"})

	InsightFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oceanlens",
		Name:      "insight_fetches_total",
		Help:      "Insight fetches by settled status",
	}, []string{"status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "oceanlens",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "oceanlens",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
