package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DecisionMetrics records policy evaluation outcomes for observability.
// Labels stay low-cardinality: resource keys are normalized route patterns
// and reason codes form a closed set.
type DecisionMetrics interface {
	// RecordDecision counts one evaluation with its outcome and reason.
	// Outcome is "allowed" or "denied"; reason is the decision's reason code.
	RecordDecision(ctx context.Context, resourceKey, outcome, reason string)

	// RecordDuration records how long one evaluation took, including any time
	// spent waiting on a confirmation prompt.
	RecordDuration(ctx context.Context, resourceKey, outcome string, duration time.Duration)
}

// decisionMetrics implements DecisionMetrics using OpenTelemetry instruments.
type decisionMetrics struct {
	decisionCounter metric.Int64Counter
	durationHisto   metric.Float64Histogram
}

// NewDecisionMetrics creates a DecisionMetrics implementation on the given
// meter provider. The namespace prefixes the metric names.
func NewDecisionMetrics(meterProvider metric.MeterProvider, namespace string) (DecisionMetrics, error) {
	meter := meterProvider.Meter(namespace)

	decisionCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_decisions_total", namespace),
		metric.WithDescription("Total number of policy evaluations"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision counter: %w", err)
	}

	durationHisto, err := meter.Float64Histogram(
		fmt.Sprintf("%s_decision_duration_seconds", namespace),
		metric.WithDescription("Duration of policy evaluations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision duration histogram: %w", err)
	}

	return &decisionMetrics{
		decisionCounter: decisionCounter,
		durationHisto:   durationHisto,
	}, nil
}

// RecordDecision increments the decision counter with resource, outcome, and
// reason labels.
func (d *decisionMetrics) RecordDecision(ctx context.Context, resourceKey, outcome, reason string) {
	d.decisionCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("resource", resourceKey),
			attribute.String("outcome", outcome),
			attribute.String("reason", reason),
		),
	)
}

// RecordDuration records the evaluation duration in seconds with resource and
// outcome labels.
func (d *decisionMetrics) RecordDuration(
	ctx context.Context,
	resourceKey, outcome string,
	duration time.Duration,
) {
	d.durationHisto.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("resource", resourceKey),
			attribute.String("outcome", outcome),
		),
	)
}

// NoOpDecisionMetrics is a no-op implementation for when metrics are disabled.
type NoOpDecisionMetrics struct{}

// NewNoOpDecisionMetrics creates a no-op DecisionMetrics implementation.
func NewNoOpDecisionMetrics() DecisionMetrics {
	return &NoOpDecisionMetrics{}
}

// RecordDecision does nothing when metrics are disabled.
func (n *NoOpDecisionMetrics) RecordDecision(ctx context.Context, resourceKey, outcome, reason string) {
	// No-op
}

// RecordDuration does nothing when metrics are disabled.
func (n *NoOpDecisionMetrics) RecordDuration(
	ctx context.Context,
	resourceKey, outcome string,
	duration time.Duration,
) {
	// No-op
}
