package usecase

import (
	"context"
	"time"

	guardDomain "github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/domain"
	"github.com/hordu-ma/wuhao-tutor-sub002/internal/metrics"
)

// engineWithMetrics decorates Engine with decision metrics instrumentation.
type engineWithMetrics struct {
	next    Engine
	metrics metrics.DecisionMetrics
}

// NewEngineWithMetrics wraps an Engine with decision metrics recording.
func NewEngineWithMetrics(engine Engine, m metrics.DecisionMetrics) Engine {
	return &engineWithMetrics{
		next:    engine,
		metrics: m,
	}
}

// Evaluate records the outcome, reason, and duration of every evaluation,
// including time spent waiting on a confirmation prompt.
func (e *engineWithMetrics) Evaluate(
	ctx context.Context,
	subject *guardDomain.Subject,
	resourceKey string,
	evalCtx *guardDomain.EvalContext,
) *guardDomain.Decision {
	start := time.Now()
	decision := e.next.Evaluate(ctx, subject, resourceKey, evalCtx)

	e.metrics.RecordDecision(ctx, decision.ResourceKey, string(decision.Outcome), string(decision.Reason))
	e.metrics.RecordDuration(ctx, decision.ResourceKey, string(decision.Outcome), time.Since(start))

	return decision
}

// RegisterRule delegates to the wrapped engine.
func (e *engineWithMetrics) RegisterRule(rule *guardDomain.PolicyRule) error {
	return e.next.RegisterRule(rule)
}

// Rule delegates to the wrapped engine.
func (e *engineWithMetrics) Rule(resourceKey string) (*guardDomain.PolicyRule, bool) {
	return e.next.Rule(resourceKey)
}

// ClearCache delegates to the wrapped engine.
func (e *engineWithMetrics) ClearCache(subjectID string) {
	e.next.ClearCache(subjectID)
}

// RecentAudit delegates to the wrapped engine.
func (e *engineWithMetrics) RecentAudit(n int) []*guardDomain.AuditRecord {
	return e.next.RecentAudit(n)
}
