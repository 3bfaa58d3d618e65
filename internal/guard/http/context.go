// Package http provides HTTP adapters for the policy evaluation engine:
// the guard API handlers, the request interceptor, and the page guard.
package http

import (
	"context"

	guardDomain "github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/domain"
)

// subjectKey is a context key type for storing the resolved subject.
type subjectKey struct{}

// WithSubject stores the resolved subject in the context. Called by the
// identity middleware before any guarded handler runs.
func WithSubject(ctx context.Context, subject *guardDomain.Subject) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// GetSubject retrieves the resolved subject from the context.
// Returns (subject, true) if present, or (nil, false) if no subject was set.
func GetSubject(ctx context.Context) (*guardDomain.Subject, bool) {
	subject, ok := ctx.Value(subjectKey{}).(*guardDomain.Subject)
	return subject, ok
}
