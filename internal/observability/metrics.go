package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var repositoryOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "debtonator",
	Name:      "repository_operations_total",
	Help:      "Repository operations by entity, operation and outcome.",
}, []string{"entity", "operation", "outcome"})

var flagEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "debtonator",
	Name:      "feature_flag_evaluations_total",
	Help:      "Feature flag evaluations by flag name and result.",
}, []string{"flag", "result"})

var interceptorDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "debtonator",
	Name:      "feature_flag_interceptor_decisions_total",
	Help:      "Interception outcomes by layer.",
}, []string{"layer", "outcome"})

// RecordRepositoryOperation counts one persisted-store operation.
func RecordRepositoryOperation(_ context.Context, entity, operation, outcome string) {
	repositoryOperations.WithLabelValues(entity, operation, outcome).Inc()
}

// RecordFlagEvaluation counts one flag evaluation result.
func RecordFlagEvaluation(flag string, enabled bool) {
	result := "disabled"
	if enabled {
		result = "enabled"
	}
	flagEvaluations.WithLabelValues(flag, result).Inc()
}

// RecordInterceptorDecision counts one guard outcome: "uncontrolled",
// "allowed" or "denied".
func RecordInterceptorDecision(layer, outcome string) {
	interceptorDecisions.WithLabelValues(layer, outcome).Inc()
}
