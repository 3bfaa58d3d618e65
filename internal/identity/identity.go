// Package identity resolves the acting subject for incoming requests. The
// evaluation engine is transport-agnostic; this package adapts whatever the
// deployment's session mechanism provides into a domain Subject.
package identity

import (
	"net/http"
	"strings"

	guardDomain "github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/domain"
)

// Request headers recognized by the header provider. An upstream gateway that
// has already authenticated the caller sets these.
const (
	HeaderUserID      = "X-User-Id"
	HeaderUserRole    = "X-User-Role"
	HeaderTokenValid  = "X-Token-Valid"
	HeaderPermissions = "X-Permissions"
	HeaderClassIDs    = "X-Class-Ids"
)

// MembershipClassIDs is the membership field carrying the subject's class
// list, matched by scope_membership conditions.
const MembershipClassIDs = "class_ids"

// Provider resolves a Subject from an incoming request.
type Provider interface {
	// SubjectFromRequest never fails: an unrecognizable caller resolves to an
	// unauthenticated guest, which the engine then denies.
	SubjectFromRequest(r *http.Request) *guardDomain.Subject
}

// headerProvider trusts identity headers set by an authenticating gateway.
type headerProvider struct{}

// NewHeaderProvider creates a Provider that reads the X-User-* headers.
func NewHeaderProvider() Provider {
	return headerProvider{}
}

// SubjectFromRequest builds a Subject from the request headers. A missing or
// unknown role maps to guest; a missing user id means unauthenticated.
func (headerProvider) SubjectFromRequest(r *http.Request) *guardDomain.Subject {
	userID := strings.TrimSpace(r.Header.Get(HeaderUserID))

	role := guardDomain.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole))))
	if !guardDomain.ValidRole(role) {
		role = guardDomain.GuestRole
	}

	subject := &guardDomain.Subject{
		UserID:        userID,
		Role:          role,
		Authenticated: userID != "",
		TokenValid:    parseFlag(r.Header.Get(HeaderTokenValid), userID != ""),
		Permissions:   splitList(r.Header.Get(HeaderPermissions)),
	}

	if classIDs := splitList(r.Header.Get(HeaderClassIDs)); len(classIDs) > 0 {
		subject.Memberships = map[string][]string{MembershipClassIDs: classIDs}
	}
	return subject
}

// parseFlag reads a boolean header, falling back when the header is absent.
func parseFlag(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return fallback
	case "true", "1", "yes":
		return true
	}
	return false
}

// splitList parses a comma-separated header value, dropping empty items.
func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
