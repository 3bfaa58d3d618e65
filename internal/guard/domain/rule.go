package domain

import (
	"time"

	validation "github.com/jellydator/validation"

	customValidation "github.com/hordu-ma/wuhao-tutor-sub002/internal/validation"
)

// ConditionSpec is one constraint within a rule. Kind selects the variant;
// only the fields belonging to that variant are meaningful.
type ConditionSpec struct {
	Kind ConditionKind `json:"kind"`

	// TimeWindowCondition: inclusive local clock-time range ("HH:MM").
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`

	// DailyQuotaCondition: maximum invocations per calendar day.
	Limit int `json:"limit,omitempty"`

	// CooldownCondition: minimum interval between invocations.
	Cooldown time.Duration `json:"cooldown,omitempty"`

	// OwnershipCondition: context field that must equal the subject's own id.
	Field string `json:"field,omitempty"`

	// ScopeMembershipCondition: context field whose value must appear in the
	// subject collection named by MembershipField.
	ScopeField      string `json:"scope_field,omitempty"`
	MembershipField string `json:"membership_field,omitempty"`

	// FileConstraintCondition: upper bound on file size and allowed types.
	MaxBytes     int64    `json:"max_bytes,omitempty"`
	AllowedTypes []string `json:"allowed_types,omitempty"`
}

// Validate checks that the condition's variant-specific fields are coherent.
func (c ConditionSpec) Validate() error {
	switch c.Kind {
	case TimeWindowCondition:
		return validation.ValidateStruct(&c,
			validation.Field(&c.Start, validation.Required, customValidation.ClockTime),
			validation.Field(&c.End, validation.Required, customValidation.ClockTime),
		)
	case DailyQuotaCondition:
		return validation.ValidateStruct(&c,
			validation.Field(&c.Limit, validation.Required, validation.Min(1)),
		)
	case CooldownCondition:
		if c.Cooldown <= 0 {
			return validation.NewError("validation_cooldown", "cooldown must be positive")
		}
		return nil
	case OwnershipCondition:
		return validation.ValidateStruct(&c,
			validation.Field(&c.Field, validation.Required, customValidation.NotBlank),
		)
	case ScopeMembershipCondition:
		return validation.ValidateStruct(&c,
			validation.Field(&c.ScopeField, validation.Required, customValidation.NotBlank),
			validation.Field(&c.MembershipField, validation.Required, customValidation.NotBlank),
		)
	case FileConstraintCondition:
		if c.MaxBytes <= 0 && len(c.AllowedTypes) == 0 {
			return validation.NewError(
				"validation_file_constraint",
				"file constraint must set max_bytes or allowed_types",
			)
		}
		return nil
	default:
		return validation.NewError("validation_condition_kind", "unknown condition kind")
	}
}

// PolicyRule is the declarative authorization policy for one resource key.
// Rules are loaded once at startup and treated as read-only afterwards.
type PolicyRule struct {
	// ResourceKey is the normalized identifier this rule gates.
	ResourceKey string `json:"resource_key"`
	// RequiredPermission optionally names a fine-grained grant the subject
	// must hold. Checked through the permission-lookup collaborator.
	RequiredPermission string `json:"required_permission,omitempty"`
	// AllowedRoles restricts the rule to a role set. Empty means any
	// authenticated role.
	AllowedRoles []Role `json:"allowed_roles,omitempty"`
	// Conditions are evaluated in declared order; the first failure wins.
	Conditions []ConditionSpec `json:"conditions,omitempty"`
	// Sensitive marks operations that require explicit user confirmation.
	Sensitive bool `json:"sensitive,omitempty"`
	// ConfirmMessage is shown by the confirmation gate for sensitive rules.
	ConfirmMessage string `json:"confirm_message,omitempty"`
	// CacheTTL overrides the engine default lifetime for cached Allow
	// decisions. Zero means use the engine default.
	CacheTTL time.Duration `json:"cache_ttl,omitempty"`
	// Description documents the rule for operators.
	Description string `json:"description,omitempty"`
}

// RoleAllowed reports whether role satisfies the rule's allowed-role set.
// An empty set admits any authenticated role.
func (r *PolicyRule) RoleAllowed(role Role) bool {
	if len(r.AllowedRoles) == 0 {
		return true
	}
	for _, allowed := range r.AllowedRoles {
		if allowed == role {
			return true
		}
	}
	return false
}

// Validate checks the rule is well formed before registration.
func (r *PolicyRule) Validate() error {
	if err := validation.ValidateStruct(r,
		validation.Field(&r.ResourceKey, validation.Required, customValidation.NotBlank),
		validation.Field(&r.AllowedRoles, validation.Each(validation.By(validateRole))),
	); err != nil {
		return err
	}
	for _, cond := range r.Conditions {
		if err := cond.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// validateRole validates a single allowed-role entry.
func validateRole(value interface{}) error {
	role, ok := value.(Role)
	if !ok {
		return validation.NewError("validation_role_type", "must be a role")
	}
	if !ValidRole(role) {
		return validation.NewError("validation_role_value", "unknown role")
	}
	return nil
}
