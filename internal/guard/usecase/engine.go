package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/hordu-ma/wuhao-tutor-sub002/internal/errors"
	guardDomain "github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/domain"
	guardService "github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/service"
)

// DefaultCacheTTL is the lifetime of cached Allow decisions when neither the
// rule nor the engine configuration declares one.
const DefaultCacheTTL = 2 * time.Minute

// policyEngine implements Engine. It owns its counter store, decision cache,
// and audit log as fields — one instance per application session, passed by
// reference to adapters — rather than hiding them in package-level state.
type policyEngine struct {
	registry    *ruleRegistry
	counters    *guardService.CounterStore
	cache       *guardService.DecisionCache
	audit       *guardService.AuditLog
	gate        guardService.ConfirmationGate
	permissions PermissionChecker
	logger      *slog.Logger
	now         guardService.NowFunc
	defaultTTL  time.Duration

	// confirmGroup collapses concurrent confirmations for the same
	// (subject, resourceKey) into one prompt; late callers share the first
	// caller's outcome. With sharing disabled, inflight tracks pending
	// confirmations and late callers are denied EvaluationInProgress.
	confirmGroup  singleflight.Group
	shareConfirms bool
	inflightMu    sync.Mutex
	inflight      map[string]struct{}
}

// Option configures a policy engine.
type Option func(*policyEngine)

// WithClock overrides the engine's time source. Quota, cooldown, time-window,
// and cache-expiry checks all read this clock.
func WithClock(now guardService.NowFunc) Option {
	return func(e *policyEngine) {
		e.now = now
	}
}

// WithDefaultCacheTTL overrides the default lifetime of cached Allow decisions.
func WithDefaultCacheTTL(ttl time.Duration) Option {
	return func(e *policyEngine) {
		if ttl > 0 {
			e.defaultTTL = ttl
		}
	}
}

// WithAuditCapacity sets the audit ring buffer capacity.
func WithAuditCapacity(capacity int) Option {
	return func(e *policyEngine) {
		e.audit = guardService.NewAuditLog(capacity)
	}
}

// WithConfirmationGate sets the gate used for sensitive operations.
func WithConfirmationGate(gate guardService.ConfirmationGate) Option {
	return func(e *policyEngine) {
		e.gate = gate
	}
}

// WithPermissionChecker sets the permission-lookup collaborator.
func WithPermissionChecker(checker PermissionChecker) Option {
	return func(e *policyEngine) {
		e.permissions = checker
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *policyEngine) {
		e.logger = logger
	}
}

// WithConfirmationSharing controls what a second concurrent evaluation of the
// same (subject, resourceKey) sees while a confirmation prompt is pending:
// enabled (the default), it shares the first caller's outcome; disabled, it
// is denied EvaluationInProgress instead.
func WithConfirmationSharing(enabled bool) Option {
	return func(e *policyEngine) {
		e.shareConfirms = enabled
	}
}

// NewEngine creates a policy engine with its own counter store, decision
// cache, and audit log.
func NewEngine(opts ...Option) Engine {
	e := &policyEngine{
		registry:      newRuleRegistry(),
		gate:          guardService.StaticGate(false),
		permissions:   subjectPermissionChecker{},
		logger:        slog.Default(),
		now:           time.Now,
		defaultTTL:    DefaultCacheTTL,
		shareConfirms: true,
		inflight:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.counters = guardService.NewCounterStore(e.now)
	e.cache = guardService.NewDecisionCache(e.now)
	if e.audit == nil {
		e.audit = guardService.NewAuditLog(guardService.DefaultAuditCapacity)
	}
	return e
}

// RegisterRule validates a rule and stores it under its normalized key.
func (e *policyEngine) RegisterRule(rule *guardDomain.PolicyRule) error {
	if rule == nil {
		return guardDomain.ErrInvalidRule
	}
	if err := rule.Validate(); err != nil {
		return apperrors.Wrap(guardDomain.ErrInvalidRule, err.Error())
	}
	key := guardDomain.NormalizeKey(rule.ResourceKey)
	e.registry.register(key, rule)
	return nil
}

// Rule returns the registered rule for a resource key.
func (e *policyEngine) Rule(resourceKey string) (*guardDomain.PolicyRule, bool) {
	return e.registry.get(guardDomain.NormalizeKey(resourceKey))
}

// ClearCache drops cached decisions for one subject, or all of them when
// subjectID is empty.
func (e *policyEngine) ClearCache(subjectID string) {
	if subjectID == "" {
		e.cache.Clear()
		return
	}
	e.cache.ClearSubject(subjectID)
}

// RecentAudit returns the last n audit records, newest first.
func (e *policyEngine) RecentAudit(n int) []*guardDomain.AuditRecord {
	return e.audit.Recent(n)
}

// Evaluate runs the ordered check pipeline, short-circuiting on the first
// failure:
//
//  1. cache probe (empty context only; a hit skips audit and counters)
//  2. authentication
//  3. token validity
//  4. role check
//  5. permission check (may suspend on the collaborator)
//  6. rule conditions, in declared order
//  7. sensitive confirmation (suspends pending user input)
//  8. commit: consume quota, stamp cooldown, cache, audit
//
// Deny paths append an audit record but never touch counters, cooldown
// timestamps, or the decision cache.
func (e *policyEngine) Evaluate(
	ctx context.Context,
	subject *guardDomain.Subject,
	resourceKey string,
	evalCtx *guardDomain.EvalContext,
) *guardDomain.Decision {
	key := guardDomain.NormalizeKey(resourceKey)
	if subject == nil {
		subject = &guardDomain.Subject{Role: guardDomain.GuestRole}
	}

	// Step 1: cache probe. Only contexts without per-call facts are eligible;
	// a hit is a repeat of an already-recorded decision, so no audit append
	// and no counter increment.
	if evalCtx.IsEmpty() {
		if cached := e.cache.Get(subject.UserID, key); cached != nil {
			return cached
		}
	}

	rule, ok := e.registry.get(key)
	if !ok {
		// No policy configured: allow by default so resources added to the UI
		// before their policy is authored keep working, but leave a warning
		// trail for operators.
		decision := guardDomain.NewAllow(
			key,
			guardDomain.ReasonNoPolicyConfigured,
			"no policy configured for this resource",
			e.now(),
			e.defaultTTL,
		)
		e.logger.Warn("no policy configured, allowing by default",
			slog.String("resource_key", key),
			slog.String("subject_id", subject.UserID))
		e.cache.Set(subject.UserID, key, decision, e.defaultTTL)
		e.appendAudit(subject, decision)
		return decision
	}

	// Step 2: authentication.
	if !subject.Authenticated {
		return e.deny(subject, key, guardDomain.ReasonNotAuthenticated,
			"please sign in to continue")
	}

	// Step 3: token validity. The caller may refresh and retry the whole
	// evaluation once; the engine itself never retries.
	if !subject.TokenValid {
		return e.deny(subject, key, guardDomain.ReasonTokenInvalid,
			"your session has expired, please sign in again")
	}

	// Step 4: role check.
	if !rule.RoleAllowed(subject.Role) {
		return e.deny(subject, key, guardDomain.ReasonRoleNotAllowed,
			fmt.Sprintf("this action is restricted to roles: %s", joinRoles(rule.AllowedRoles)))
	}

	// Step 5: permission check. A collaborator failure converts into a
	// generic denial so a transient fault never grants access.
	if rule.RequiredPermission != "" {
		granted, err := e.permissions.HasPermission(ctx, subject, rule.RequiredPermission)
		if err != nil {
			e.logger.Error("permission lookup failed",
				slog.String("resource_key", key),
				slog.String("permission", rule.RequiredPermission),
				slog.Any("error", err))
			return e.deny(subject, key, guardDomain.ReasonPermissionDenied,
				"authorization is temporarily unavailable, please try again")
		}
		if !granted {
			return e.deny(subject, key, guardDomain.ReasonPermissionDenied,
				"you do not have permission to perform this action")
		}
	}

	// Step 6: conditions in declared order, first failure wins.
	for _, cond := range rule.Conditions {
		if decision := e.checkCondition(subject, key, cond, evalCtx); decision != nil {
			e.appendAudit(subject, decision)
			return decision
		}
	}

	// Step 7: sensitive confirmation.
	if rule.Sensitive && (evalCtx == nil || !evalCtx.Confirmed) {
		confirmed, decision := e.confirm(ctx, subject, key, rule)
		if decision != nil {
			e.appendAudit(subject, decision)
			return decision
		}
		if !confirmed {
			// A decline is benign: audited, never logged as a policy failure.
			decision := guardDomain.NewDeny(key, guardDomain.ReasonUserCancelled, "", e.now())
			e.logger.Debug("confirmation declined",
				slog.String("resource_key", key),
				slog.String("subject_id", subject.UserID))
			e.appendAudit(subject, decision)
			return decision
		}
	}

	// Step 8: commit. Quota is consumed and the cooldown clock stamped only
	// here, after the full pipeline passed.
	e.counters.Commit(key)
	ttl := rule.CacheTTL
	if ttl <= 0 {
		ttl = e.defaultTTL
	}
	decision := guardDomain.NewAllow(key, guardDomain.ReasonAllowed, "allowed", e.now(), ttl)
	e.cache.Set(subject.UserID, key, decision, ttl)
	e.appendAudit(subject, decision)
	return decision
}

// confirm runs the confirmation gate for one sensitive evaluation,
// de-duplicating concurrent prompts for the same (subject, resourceKey).
// Returns the user's answer, or a non-nil decision when the evaluation
// resolves without an answer (cancellation or a pending prompt with sharing
// disabled).
func (e *policyEngine) confirm(
	ctx context.Context,
	subject *guardDomain.Subject,
	key string,
	rule *guardDomain.PolicyRule,
) (bool, *guardDomain.Decision) {
	flightKey := subject.UserID + "\x00" + key

	if !e.shareConfirms {
		e.inflightMu.Lock()
		if _, pending := e.inflight[flightKey]; pending {
			e.inflightMu.Unlock()
			return false, guardDomain.NewDeny(key, guardDomain.ReasonEvaluationInProgress,
				"a confirmation for this action is already pending", e.now())
		}
		e.inflight[flightKey] = struct{}{}
		e.inflightMu.Unlock()
		defer func() {
			e.inflightMu.Lock()
			delete(e.inflight, flightKey)
			e.inflightMu.Unlock()
		}()

		confirmed, err := e.gate.Confirm(ctx, rule.ConfirmMessage)
		if err != nil {
			return false, guardDomain.NewDeny(key, guardDomain.ReasonUserCancelled, "", e.now())
		}
		return confirmed, nil
	}

	result, err, _ := e.confirmGroup.Do(flightKey, func() (any, error) {
		return e.gate.Confirm(ctx, rule.ConfirmMessage)
	})
	if err != nil {
		// Teardown while the prompt was pending resolves as a cancellation
		// rather than a dangling evaluation.
		return false, guardDomain.NewDeny(key, guardDomain.ReasonUserCancelled, "", e.now())
	}
	return result.(bool), nil
}

// checkCondition evaluates one condition, returning nil on pass or a denial
// decision on failure. Missing context fields pass ownership, scope, and file
// checks: the absence of a claim is not itself a denial.
func (e *policyEngine) checkCondition(
	subject *guardDomain.Subject,
	key string,
	cond guardDomain.ConditionSpec,
	evalCtx *guardDomain.EvalContext,
) *guardDomain.Decision {
	now := e.now()

	switch cond.Kind {
	case guardDomain.TimeWindowCondition:
		if !withinWindow(now, cond.Start, cond.End) {
			return guardDomain.NewDeny(key, guardDomain.ReasonTimeRestricted,
				fmt.Sprintf("this action is only available between %s and %s", cond.Start, cond.End), now)
		}

	case guardDomain.DailyQuotaCondition:
		// Passing here does not consume quota; the counter moves only on
		// commit, so a later denial in the pipeline costs nothing.
		if e.counters.TodayCount(key) >= cond.Limit {
			return guardDomain.NewDeny(key, guardDomain.ReasonDailyLimitReached,
				fmt.Sprintf("daily limit of %d reached for this action", cond.Limit), now)
		}

	case guardDomain.CooldownCondition:
		if last, ok := e.counters.LastInvocation(key); ok {
			if elapsed := now.Sub(last); elapsed < cond.Cooldown {
				remaining := (cond.Cooldown - elapsed).Round(time.Second)
				if remaining < time.Second {
					remaining = time.Second
				}
				return guardDomain.NewDeny(key, guardDomain.ReasonCooldownActive,
					fmt.Sprintf("please wait %s before trying again", remaining), now)
			}
		}

	case guardDomain.OwnershipCondition:
		if owner, ok := evalCtx.Field(cond.Field); ok && owner != subject.UserID {
			return guardDomain.NewDeny(key, guardDomain.ReasonOwnershipDenied,
				"you can only act on your own records", now)
		}

	case guardDomain.ScopeMembershipCondition:
		if scope, ok := evalCtx.Field(cond.ScopeField); ok && !subject.HasMembership(cond.MembershipField, scope) {
			return guardDomain.NewDeny(key, guardDomain.ReasonScopeDenied,
				"this record is outside your scope", now)
		}

	case guardDomain.FileConstraintCondition:
		if evalCtx != nil {
			if cond.MaxBytes > 0 && evalCtx.FileSize > cond.MaxBytes {
				return guardDomain.NewDeny(key, guardDomain.ReasonFileRestricted,
					fmt.Sprintf("file exceeds the %d byte limit", cond.MaxBytes), now)
			}
			if evalCtx.FileType != "" && len(cond.AllowedTypes) > 0 && !containsString(cond.AllowedTypes, evalCtx.FileType) {
				return guardDomain.NewDeny(key, guardDomain.ReasonFileRestricted,
					fmt.Sprintf("file type %s is not allowed", evalCtx.FileType), now)
			}
		}
	}

	return nil
}

// deny builds, logs, and audits a denial.
func (e *policyEngine) deny(
	subject *guardDomain.Subject,
	key string,
	reason guardDomain.ReasonCode,
	message string,
) *guardDomain.Decision {
	decision := guardDomain.NewDeny(key, reason, message, e.now())
	e.logger.Debug("evaluation denied",
		slog.String("resource_key", key),
		slog.String("subject_id", subject.UserID),
		slog.String("role", string(subject.Role)),
		slog.String("reason", string(reason)))
	e.appendAudit(subject, decision)
	return decision
}

// appendAudit records one evaluation in the ring buffer.
func (e *policyEngine) appendAudit(subject *guardDomain.Subject, decision *guardDomain.Decision) {
	e.audit.Append(&guardDomain.AuditRecord{
		ID:          uuid.Must(uuid.NewV7()),
		Timestamp:   decision.EvaluatedAt,
		ResourceKey: decision.ResourceKey,
		SubjectID:   subject.UserID,
		Role:        subject.Role,
		Outcome:     decision.Outcome,
		Reason:      decision.Reason,
	})
}

// withinWindow reports whether t's local wall-clock time falls inside the
// inclusive [start, end] range. A window with start after end wraps past
// midnight (e.g. 22:00–06:00).
func withinWindow(t time.Time, start, end string) bool {
	minutes := t.Hour()*60 + t.Minute()
	startMin, ok := parseClockMinutes(start)
	if !ok {
		return true
	}
	endMin, ok := parseClockMinutes(end)
	if !ok {
		return true
	}
	if startMin <= endMin {
		return minutes >= startMin && minutes <= endMin
	}
	return minutes >= startMin || minutes <= endMin
}

// parseClockMinutes converts "HH:MM" to minutes since midnight.
func parseClockMinutes(s string) (int, bool) {
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return parsed.Hour()*60 + parsed.Minute(), true
}

// joinRoles renders a role set for user-facing messages.
func joinRoles(roles []guardDomain.Role) string {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, string(role))
	}
	return strings.Join(names, ", ")
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// subjectPermissionChecker is the default permission collaborator: it checks
// the grants carried on the subject itself. A "*" grant matches everything.
type subjectPermissionChecker struct{}

func (subjectPermissionChecker) HasPermission(
	_ context.Context,
	subject *guardDomain.Subject,
	permission string,
) (bool, error) {
	for _, granted := range subject.Permissions {
		if granted == permission || granted == "*" {
			return true, nil
		}
	}
	return false, nil
}
