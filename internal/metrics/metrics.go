// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Analysis outcomes used as the "outcome" label.
const (
	OutcomeAnalyzed = "analyzed"
	OutcomeNoFrames = "no_frames"
	OutcomeNoFaces  = "no_faces"
	OutcomeFailed   = "failed"
)

var (
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facetally_analyses_total",
		Help: "Total number of video analyses, by outcome",
	}, []string{"outcome"})

	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "facetally_analysis_duration_seconds",
		Help:    "Wall time of one video analysis",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	})

	FramesDecodedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facetally_frames_decoded_total",
		Help: "Total number of frames decoded across all videos",
	})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facetally_frames_sampled_total",
		Help: "Total number of frames offered to the classifier",
	})

	ClassificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facetally_frame_classifications_total",
		Help: "Per-frame classifier calls, by result",
	}, []string{"result"})

	VideosStored = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "facetally_videos_stored",
		Help: "Number of video records currently held in memory",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facetally_http_requests_total",
		Help: "HTTP requests served, by method and status code",
	}, []string{"method", "status"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
