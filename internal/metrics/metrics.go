package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request metrics
	AnalysesStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmasynapse_analyses_started_total",
			Help: "Total number of analysis requests started",
		},
		[]string{"category"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pharmasynapse_request_duration_seconds",
			Help:    "End-to-end analysis latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"category", "status"},
	)

	// Intent metrics
	IntentResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmasynapse_intent_resolutions_total",
			Help: "Total number of intent resolutions by path and category",
		},
		[]string{"path", "category"},
	)

	IntentModelFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmasynapse_intent_model_fallbacks_total",
			Help: "Model-assisted resolutions that fell back to rules",
		},
		[]string{"reason"},
	)

	// Stage metrics
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pharmasynapse_stage_duration_seconds",
			Help:    "Stage execution duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage", "status"},
	)

	StageResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmasynapse_stage_results_total",
			Help: "Total number of stage results by status",
		},
		[]string{"stage", "status"},
	)

	LateStageResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmasynapse_stage_late_results_total",
			Help: "Stage results discarded because they arrived after the group barrier",
		},
		[]string{"stage"},
	)

	DegradedGroups = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pharmasynapse_degraded_groups_total",
			Help: "Stage groups in which every stage failed",
		},
	)

	// Provider metrics
	ProviderCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmasynapse_provider_cache_total",
			Help: "Provider payload cache lookups by result",
		},
		[]string{"stage", "result"},
	)

	ProviderFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmasynapse_provider_dataset_fallbacks_total",
			Help: "Provider calls answered from the offline dataset after an upstream failure",
		},
		[]string{"stage"},
	)

	// Synthesis metrics
	Syntheses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmasynapse_synthesis_total",
			Help: "Total number of syntheses by mode",
		},
		[]string{"mode"},
	)

	FeasibilityScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pharmasynapse_feasibility_score",
			Help:    "Distribution of feasibility scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
	)

	// Generative backend metrics
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmasynapse_llm_requests_total",
			Help: "Total number of generative backend requests",
		},
		[]string{"purpose", "status"},
	)

	LLMLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pharmasynapse_llm_latency_seconds",
			Help:    "Generative backend latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"purpose"},
	)

	// Template metrics
	TemplatesLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmasynapse_templates_loaded_total",
			Help: "Pipeline templates loaded into the registry",
		},
		[]string{"name"},
	)

	TemplateValidationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmasynapse_template_validation_errors_total",
			Help: "Pipeline template validation failures by code",
		},
		[]string{"code"},
	)

	// Streaming metrics
	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pharmasynapse_stream_subscribers",
			Help: "Active progress stream subscribers",
		},
	)
)

// RecordStageMetrics records the outcome of one stage invocation.
func RecordStageMetrics(stage, status string, durationSeconds float64) {
	StageResults.WithLabelValues(stage, status).Inc()
	StageDuration.WithLabelValues(stage, status).Observe(durationSeconds)
}

// RecordSynthesisMetrics records the synthesis mode and, when present, the score.
func RecordSynthesisMetrics(mode string, score *float64) {
	Syntheses.WithLabelValues(mode).Inc()
	if score != nil {
		FeasibilityScore.Observe(*score)
	}
}

// RecordLLMMetrics records one generative backend call.
func RecordLLMMetrics(purpose, status string, durationSeconds float64) {
	LLMRequests.WithLabelValues(purpose, status).Inc()
	if durationSeconds > 0 {
		LLMLatency.WithLabelValues(purpose).Observe(durationSeconds)
	}
}

// RecordRequestMetrics records a completed analysis request.
func RecordRequestMetrics(category, status string, durationSeconds float64) {
	RequestDuration.WithLabelValues(category, status).Observe(durationSeconds)
}
