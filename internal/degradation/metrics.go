package degradation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// degradationEventsTotal tracks degraded requests
	degradationEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmasynapse_degradation_events_total",
			Help: "Total number of degraded analyses by level and category",
		},
		[]string{"level", "category"},
	)

	// lastDegradationLevel tracks the level of the most recent request
	lastDegradationLevel = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pharmasynapse_degradation_level",
			Help: "Degradation level of the most recent analysis (0=none, 1=minor, 2=moderate, 3=severe)",
		},
	)

	// dependencyHealthStatus tracks individual dependency health
	dependencyHealthStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pharmasynapse_dependency_health",
			Help: "Dependency health status (1=healthy, 0=unhealthy)",
		},
		[]string{"dependency", "type"},
	)

	// modeDowngradeEvents tracks synthesis falling back from the generative path
	modeDowngradeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmasynapse_mode_downgrade_total",
			Help: "Total number of synthesis mode downgrades by original mode and target mode",
		},
		[]string{"from_mode", "to_mode", "category"},
	)

	// partialResultsReturned tracks when partial results are returned instead of failures
	partialResultsReturned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmasynapse_partial_results_total",
			Help: "Total number of analyses answered with only part of the requested evidence",
		},
		[]string{"category", "level"},
	)
)

// RecordDependencyHealth records dependency health status
func RecordDependencyHealth(dependency string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	dependencyHealthStatus.WithLabelValues(dependency, "health_check").Set(value)
}

// RecordCircuitBreakerHealth records circuit breaker health
func RecordCircuitBreakerHealth(dependency string, isOpen bool) {
	value := 1.0
	if isOpen {
		value = 0.0
	}
	dependencyHealthStatus.WithLabelValues(dependency, "circuit_breaker").Set(value)
}

// RecordModeDowngrade records a synthesis mode downgrade
func RecordModeDowngrade(fromMode, toMode, category string) {
	modeDowngradeEvents.WithLabelValues(fromMode, toMode, category).Inc()
}

// RecordPartialResults records when partial results are returned
func RecordPartialResults(category, level string) {
	partialResultsReturned.WithLabelValues(category, level).Inc()
}
