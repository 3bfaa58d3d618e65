package dto

import (
	"time"

	guardDomain "github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/domain"
)

// DecisionResponse represents an evaluation decision in API responses.
type DecisionResponse struct {
	Allowed     bool      `json:"allowed"`
	Reason      string    `json:"reason"`
	Message     string    `json:"message,omitempty"`
	ResourceKey string    `json:"resource_key"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// MapDecisionToResponse converts a domain decision to an API response.
func MapDecisionToResponse(decision *guardDomain.Decision) DecisionResponse {
	return DecisionResponse{
		Allowed:     decision.Allowed(),
		Reason:      string(decision.Reason),
		Message:     decision.Message,
		ResourceKey: decision.ResourceKey,
		EvaluatedAt: decision.EvaluatedAt,
	}
}

// AuditRecordResponse represents one audit record in API responses.
type AuditRecordResponse struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	ResourceKey string    `json:"resource_key"`
	SubjectID   string    `json:"subject_id"`
	Role        string    `json:"role"`
	Outcome     string    `json:"outcome"`
	Reason      string    `json:"reason"`
}

// ListAuditResponse represents the recent audit trail, newest first.
type ListAuditResponse struct {
	Data []AuditRecordResponse `json:"data"`
}

// MapAuditToListResponse converts domain audit records to a list API response.
func MapAuditToListResponse(records []*guardDomain.AuditRecord) ListAuditResponse {
	responses := make([]AuditRecordResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, AuditRecordResponse{
			ID:          record.ID.String(),
			Timestamp:   record.Timestamp,
			ResourceKey: record.ResourceKey,
			SubjectID:   record.SubjectID,
			Role:        string(record.Role),
			Outcome:     string(record.Outcome),
			Reason:      string(record.Reason),
		})
	}
	return ListAuditResponse{Data: responses}
}
