package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	previewFramesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "titlecam_preview_frames_total",
			Help: "Preview frames processed",
		},
	)

	detectorRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "titlecam_detector_runs_total",
			Help: "Detector invocations by stream and outcome",
		},
		[]string{"stream", "outcome"},
	)

	detectorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "titlecam_detector_duration_seconds",
			Help:    "Detector latency",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"stream"},
	)

	snapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "titlecam_snapshots_total",
			Help: "Snapshots processed by outcome",
		},
		[]string{"outcome"},
	)

	recognitionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "titlecam_recognition_duration_seconds",
			Help:    "Text recognition latency",
			Buckets: prometheus.DefBuckets,
		},
	)

	captureRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "titlecam_capture_requests_total",
			Help: "Capture requests by outcome",
		},
		[]string{"outcome"},
	)
)
