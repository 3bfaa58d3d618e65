// Package domain defines the policy evaluation domain models: subjects, policy
// rules, conditions, decisions, and audit records for gating user actions in a
// multi-role tutoring application.
package domain

// Role identifies the kind of principal attempting an action.
// The set is closed; unknown roles must be mapped to GuestRole by callers.
type Role string

const (
	// StudentRole is a learner submitting and reviewing their own work.
	StudentRole Role = "student"

	// ParentRole is a guardian with read-mostly access to a student's records.
	ParentRole Role = "parent"

	// TeacherRole manages classes, assignments, and corrections.
	TeacherRole Role = "teacher"

	// AdminRole has operational access to the whole application.
	AdminRole Role = "admin"

	// GuestRole is an unauthenticated or unrecognized principal.
	GuestRole Role = "guest"
)

// Roles lists every valid role value.
func Roles() []Role {
	return []Role{StudentRole, ParentRole, TeacherRole, AdminRole, GuestRole}
}

// ValidRole reports whether r is one of the closed role set.
func ValidRole(r Role) bool {
	switch r {
	case StudentRole, ParentRole, TeacherRole, AdminRole, GuestRole:
		return true
	}
	return false
}

// Outcome is the result of a policy evaluation.
type Outcome string

const (
	// Allowed means the action may proceed.
	Allowed Outcome = "allowed"

	// Denied means the action must not proceed.
	Denied Outcome = "denied"
)

// ReasonCode explains why an evaluation produced its outcome. The set is
// closed; every code except NoPolicyConfigured accompanies a Denied outcome.
type ReasonCode string

const (
	// ReasonAllowed: every check passed (informational, accompanies Allowed).
	ReasonAllowed ReasonCode = "Allowed"

	// ReasonNotAuthenticated: the subject is not signed in.
	ReasonNotAuthenticated ReasonCode = "NotAuthenticated"

	// ReasonTokenInvalid: the subject's session token is expired or invalid.
	ReasonTokenInvalid ReasonCode = "TokenInvalid"

	// ReasonRoleNotAllowed: the subject's role is outside the rule's allowed set.
	ReasonRoleNotAllowed ReasonCode = "RoleNotAllowed"

	// ReasonPermissionDenied: the subject lacks the rule's required permission,
	// or the permission lookup collaborator failed (fail-closed).
	ReasonPermissionDenied ReasonCode = "PermissionDenied"

	// ReasonTimeRestricted: the current local time is outside the rule's window.
	ReasonTimeRestricted ReasonCode = "TimeRestricted"

	// ReasonDailyLimitReached: today's invocation quota is exhausted.
	ReasonDailyLimitReached ReasonCode = "DailyLimitReached"

	// ReasonCooldownActive: the minimum interval since the last invocation has
	// not yet elapsed.
	ReasonCooldownActive ReasonCode = "CooldownActive"

	// ReasonOwnershipDenied: the target record belongs to a different subject.
	ReasonOwnershipDenied ReasonCode = "OwnershipDenied"

	// ReasonScopeDenied: the target record is outside the subject's scope
	// (e.g. a class the teacher does not manage).
	ReasonScopeDenied ReasonCode = "ScopeDenied"

	// ReasonFileRestricted: the attached file exceeds the size limit or has a
	// disallowed type.
	ReasonFileRestricted ReasonCode = "FileRestricted"

	// ReasonUserCancelled: the subject declined the confirmation prompt, or the
	// prompt was torn down before an answer arrived. Benign, never an error.
	ReasonUserCancelled ReasonCode = "UserCancelled"

	// ReasonEvaluationInProgress: a confirmation for the same subject and
	// resource is already pending and outcome sharing is disabled.
	ReasonEvaluationInProgress ReasonCode = "EvaluationInProgress"

	// ReasonNoPolicyConfigured: no rule exists for the resource; the action is
	// allowed by default (informational only).
	ReasonNoPolicyConfigured ReasonCode = "NoPolicyConfigured"
)

// ConditionKind tags one variant of the ConditionSpec union.
type ConditionKind string

const (
	// TimeWindowCondition restricts the action to a local clock-time range.
	TimeWindowCondition ConditionKind = "time_window"

	// DailyQuotaCondition caps invocations per calendar day.
	DailyQuotaCondition ConditionKind = "daily_quota"

	// CooldownCondition enforces a minimum interval between invocations.
	CooldownCondition ConditionKind = "cooldown"

	// OwnershipCondition requires the target record to belong to the subject.
	OwnershipCondition ConditionKind = "ownership"

	// ScopeMembershipCondition requires the target to be within a collection
	// the subject holds (e.g. the teacher's class list).
	ScopeMembershipCondition ConditionKind = "scope_membership"

	// FileConstraintCondition bounds attached file size and type.
	FileConstraintCondition ConditionKind = "file_constraint"
)
