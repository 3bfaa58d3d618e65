// Package usecase implements the policy evaluation engine: the rule registry,
// the ordered condition pipeline, decision caching, quota/cooldown counters,
// and the sensitive-operation confirmation gate.
package usecase

import (
	"context"

	guardDomain "github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/domain"
)

// Engine is the public surface of the policy evaluation engine.
//
// Evaluate never returns an error for an expected denial: every rule failure
// is a returned Decision. Collaborator failures (permission lookup I/O) are
// converted into fail-closed denials internally.
type Engine interface {
	// Evaluate authorizes one action for subject against resourceKey. The
	// evalCtx carries resource-specific facts; nil is treated as empty.
	Evaluate(
		ctx context.Context,
		subject *guardDomain.Subject,
		resourceKey string,
		evalCtx *guardDomain.EvalContext,
	) *guardDomain.Decision

	// RegisterRule adds a rule to the registry, keyed by its normalized
	// resource key. Registering a duplicate key overwrites the prior rule and
	// is expected only at initialization.
	RegisterRule(rule *guardDomain.PolicyRule) error

	// Rule returns the registered rule for a normalized resource key.
	Rule(resourceKey string) (*guardDomain.PolicyRule, bool)

	// ClearCache drops cached decisions for one subject, or for everyone when
	// subjectID is empty. Adapters call this at logout/role-switch boundaries.
	ClearCache(subjectID string)

	// RecentAudit returns the last n audit records, newest first.
	RecentAudit(n int) []*guardDomain.AuditRecord
}

// PermissionChecker resolves fine-grained permission grants for a subject.
// Implementations may perform I/O; failures are treated as denials by the
// engine (fail-closed), never as grants.
type PermissionChecker interface {
	HasPermission(ctx context.Context, subject *guardDomain.Subject, permission string) (bool, error)
}
