package domain

import "time"

// Decision is the immutable result of one policy evaluation.
type Decision struct {
	Outcome     Outcome
	Reason      ReasonCode
	Message     string
	ResourceKey string
	EvaluatedAt time.Time
	// TTL is the decision's cache lifetime. Zero means not cacheable.
	// Only Allowed decisions are ever cached: a denial may resolve itself
	// (cooldown elapses, the day rolls over) and must always re-evaluate.
	TTL time.Duration
}

// Allowed reports whether the action may proceed.
func (d *Decision) Allowed() bool {
	return d.Outcome == Allowed
}

// NewAllow builds an Allowed decision.
func NewAllow(resourceKey string, reason ReasonCode, message string, evaluatedAt time.Time, ttl time.Duration) *Decision {
	return &Decision{
		Outcome:     Allowed,
		Reason:      reason,
		Message:     message,
		ResourceKey: resourceKey,
		EvaluatedAt: evaluatedAt,
		TTL:         ttl,
	}
}

// NewDeny builds a Denied decision. Denials are never cacheable.
func NewDeny(resourceKey string, reason ReasonCode, message string, evaluatedAt time.Time) *Decision {
	return &Decision{
		Outcome:     Denied,
		Reason:      reason,
		Message:     message,
		ResourceKey: resourceKey,
		EvaluatedAt: evaluatedAt,
	}
}
