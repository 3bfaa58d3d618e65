package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditRecord captures one policy evaluation for in-session inspection.
// Records live in a fixed-capacity ring buffer and are never persisted
// beyond process lifetime.
type AuditRecord struct {
	ID          uuid.UUID
	Timestamp   time.Time
	ResourceKey string
	SubjectID   string
	Role        Role
	Outcome     Outcome
	Reason      ReasonCode
}
