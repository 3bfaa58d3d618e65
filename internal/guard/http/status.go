package http

import (
	"net/http"

	guardDomain "github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/domain"
)

// StatusForDecision maps a decision to the HTTP status the interceptor
// responds with when enforcing it.
func StatusForDecision(decision *guardDomain.Decision) int {
	if decision.Allowed() {
		return http.StatusOK
	}

	switch decision.Reason {
	case guardDomain.ReasonNotAuthenticated, guardDomain.ReasonTokenInvalid:
		return http.StatusUnauthorized

	case guardDomain.ReasonDailyLimitReached, guardDomain.ReasonCooldownActive:
		return http.StatusTooManyRequests

	case guardDomain.ReasonUserCancelled, guardDomain.ReasonEvaluationInProgress:
		return http.StatusConflict

	default:
		// RoleNotAllowed, PermissionDenied, TimeRestricted, OwnershipDenied,
		// ScopeDenied, FileRestricted.
		return http.StatusForbidden
	}
}
