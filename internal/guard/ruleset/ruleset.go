// Package ruleset loads policy rules from JSON documents so deployments can
// author policies without recompiling.
package ruleset

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	guardDomain "github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/domain"
)

// conditionDoc is the JSON shape of one condition. Durations are Go duration
// strings ("30s", "5m").
type conditionDoc struct {
	Kind            string   `json:"kind"`
	Start           string   `json:"start,omitempty"`
	End             string   `json:"end,omitempty"`
	Limit           int      `json:"limit,omitempty"`
	Cooldown        string   `json:"cooldown,omitempty"`
	Field           string   `json:"field,omitempty"`
	ScopeField      string   `json:"scope_field,omitempty"`
	MembershipField string   `json:"membership_field,omitempty"`
	MaxBytes        int64    `json:"max_bytes,omitempty"`
	AllowedTypes    []string `json:"allowed_types,omitempty"`
}

// ruleDoc is the JSON shape of one policy rule.
type ruleDoc struct {
	ResourceKey        string         `json:"resource_key"`
	RequiredPermission string         `json:"required_permission,omitempty"`
	AllowedRoles       []string       `json:"allowed_roles,omitempty"`
	Conditions         []conditionDoc `json:"conditions,omitempty"`
	Sensitive          bool           `json:"sensitive,omitempty"`
	ConfirmMessage     string         `json:"confirm_message,omitempty"`
	CacheTTL           string         `json:"cache_ttl,omitempty"`
	Description        string         `json:"description,omitempty"`
}

// fileDoc is the top-level JSON document.
type fileDoc struct {
	Rules []ruleDoc `json:"rules"`
}

// Parse decodes and validates a JSON rule set. Every rule must pass domain
// validation; the first invalid rule aborts the parse with its position.
func Parse(r io.Reader) ([]*guardDomain.PolicyRule, error) {
	var doc fileDoc
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode rule set: %w", err)
	}

	rules := make([]*guardDomain.PolicyRule, 0, len(doc.Rules))
	for i, rd := range doc.Rules {
		rule, err := rd.toDomain()
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rd.ResourceKey, err)
		}
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rd.ResourceKey, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Load reads and parses the rule set at path.
func Load(path string) ([]*guardDomain.PolicyRule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule set: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func (rd ruleDoc) toDomain() (*guardDomain.PolicyRule, error) {
	roles := make([]guardDomain.Role, 0, len(rd.AllowedRoles))
	for _, r := range rd.AllowedRoles {
		roles = append(roles, guardDomain.Role(r))
	}

	conditions := make([]guardDomain.ConditionSpec, 0, len(rd.Conditions))
	for _, cd := range rd.Conditions {
		cond, err := cd.toDomain()
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, cond)
	}

	var cacheTTL time.Duration
	if rd.CacheTTL != "" {
		parsed, err := time.ParseDuration(rd.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("invalid cache_ttl %q: %w", rd.CacheTTL, err)
		}
		cacheTTL = parsed
	}

	return &guardDomain.PolicyRule{
		ResourceKey:        rd.ResourceKey,
		RequiredPermission: rd.RequiredPermission,
		AllowedRoles:       roles,
		Conditions:         conditions,
		Sensitive:          rd.Sensitive,
		ConfirmMessage:     rd.ConfirmMessage,
		CacheTTL:           cacheTTL,
		Description:        rd.Description,
	}, nil
}

func (cd conditionDoc) toDomain() (guardDomain.ConditionSpec, error) {
	var cooldown time.Duration
	if cd.Cooldown != "" {
		parsed, err := time.ParseDuration(cd.Cooldown)
		if err != nil {
			return guardDomain.ConditionSpec{}, fmt.Errorf("invalid cooldown %q: %w", cd.Cooldown, err)
		}
		cooldown = parsed
	}

	return guardDomain.ConditionSpec{
		Kind:            guardDomain.ConditionKind(cd.Kind),
		Start:           cd.Start,
		End:             cd.End,
		Limit:           cd.Limit,
		Cooldown:        cooldown,
		Field:           cd.Field,
		ScopeField:      cd.ScopeField,
		MembershipField: cd.MembershipField,
		MaxBytes:        cd.MaxBytes,
		AllowedTypes:    cd.AllowedTypes,
	}, nil
}
