package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	extractionJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quizassets",
			Name:      "extraction_jobs_total",
			Help:      "Total extraction jobs by engine and result",
		},
		[]string{"engine", "result"},
	)

	extractionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quizassets",
			Name:      "extraction_duration_seconds",
			Help:      "Duration of extraction jobs by engine",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"engine"},
	)

	engineFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "quizassets",
			Name:      "engine_fallbacks_total",
			Help:      "Times the primary render engine was unavailable and the in-process engine took over",
		},
	)

	pagesRendered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "quizassets",
			Name:      "pages_rendered_total",
			Help:      "Total PDF pages rendered to page images",
		},
	)

	cropsExtracted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quizassets",
			Name:      "crops_extracted_total",
			Help:      "Crop candidates extracted by source type (image-object, text-block)",
		},
		[]string{"source_type"},
	)

	matchAssignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quizassets",
			Name:      "match_assignments_total",
			Help:      "Image question match outcomes (assigned, cleared)",
		},
		[]string{"result"},
	)

	visionCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quizassets",
			Name:      "vision_calls_total",
			Help:      "Vision tie-break calls by provider and result",
		},
		[]string{"provider", "result"},
	)

	mediaUploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quizassets",
			Name:      "media_uploads_total",
			Help:      "Generated media files mirrored to S3 by result",
		},
		[]string{"result"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(extractionJobs, extractionDuration, engineFallbacks, pagesRendered, cropsExtracted, matchAssignments, visionCalls, mediaUploads)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveExtraction(engine, result string, dur time.Duration) {
	extractionJobs.WithLabelValues(engine, result).Inc()
	extractionDuration.WithLabelValues(engine).Observe(dur.Seconds())
}

func IncEngineFallback() { engineFallbacks.Inc() }

func AddPagesRendered(n int) { pagesRendered.Add(float64(n)) }

func AddCrops(sourceType string, n int) {
	cropsExtracted.WithLabelValues(sourceType).Add(float64(n))
}

func IncMatchAssigned() { matchAssignments.WithLabelValues("assigned").Inc() }
func IncMatchCleared()  { matchAssignments.WithLabelValues("cleared").Inc() }

func IncVisionCall(provider, result string) {
	visionCalls.WithLabelValues(provider, result).Inc()
}

func IncMediaUpload(result string) { mediaUploads.WithLabelValues(result).Inc() }
