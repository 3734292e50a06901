package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FilesUploaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facefind",
		Name:      "files_uploaded_total",
		Help:      "Total number of event photos uploaded",
	}, []string{"scope"})

	FacesUploaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facefind",
		Name:      "faces_uploaded_total",
		Help:      "Total number of probe faces uploaded, by outcome",
	}, []string{"outcome"})

	FacesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facefind",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected in uploaded images",
	}, []string{"owner_kind"})

	ExtractionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facefind",
		Name:      "extraction_failures_total",
		Help:      "Extractor failures downgraded to no face detected",
	}, []string{"reason"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facefind",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	ScanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facefind",
		Name:      "scan_duration_seconds",
		Help:      "Duration of match and duplicate scans",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"kind"})

	CandidatePool = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facefind",
		Name:      "candidate_pool_size",
		Help:      "Number of candidates scanned per match or duplicate request",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
	}, []string{"kind"})

	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facefind",
		Name:      "cache_requests_total",
		Help:      "Result cache lookups by kind and outcome",
	}, []string{"kind", "outcome"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facefind",
		Name:      "queue_depth",
		Help:      "Number of pending file extraction tasks in queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facefind",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facefind",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
