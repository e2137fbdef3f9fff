package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepfake_analyses_total",
		Help: "Total number of analyses, by media kind and outcome",
	}, []string{"kind", "outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "deepfake_stage_duration_seconds",
		Help:    "Duration of each analysis stage",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"stage"})

	FramesDecodedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deepfake_frames_decoded_total",
		Help: "Total number of video frames decoded across all analyses",
	})

	DecodeFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deepfake_decode_fallback_total",
		Help: "Videos with no decodable frames that were analyzed as an all-zero sequence",
	})

	Probability = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "deepfake_probability",
		Help:    "Distribution of sequence model probabilities",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})

	ExtractorDegraded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deepfake_extractor_degraded",
		Help: "1 when features come from the spatial model's final output instead of its penultimate layer",
	})
)
