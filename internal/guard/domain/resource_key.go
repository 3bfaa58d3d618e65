package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Resource key normalization. HTTP-style resources are keyed as
// "<METHOD> <path-template>" where numeric and UUID path segments collapse to
// a ":id" placeholder and query strings are stripped, so "GET /homework/42"
// and "GET /homework/99" share the rule for "GET /homework/:id".
// Feature-style resources (dotted identifiers such as "homework.delete") are
// used verbatim.
//
// Normalization is pure and idempotent: normalizing an already-normalized key
// returns it unchanged.

// NormalizeHTTPKey builds the normalized resource key for an HTTP request.
func NormalizeHTTPKey(method, rawURL string) string {
	return NormalizeKey(strings.ToUpper(method) + " " + rawURL)
}

// NormalizePageKey builds the normalized resource key for a page path, using
// the pseudo-method "PAGE" so page rules cannot collide with endpoint rules.
func NormalizePageKey(pagePath string) string {
	return NormalizeKey("PAGE " + pagePath)
}

// NormalizeKey normalizes a resource key. Keys without a space are feature
// identifiers and pass through verbatim.
func NormalizeKey(key string) string {
	method, path, found := strings.Cut(key, " ")
	if !found {
		return key
	}

	// Strip query string and fragment.
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}

	segments := strings.Split(path, "/")
	for i, segment := range segments {
		if isIDSegment(segment) {
			segments[i] = ":id"
		}
	}

	return method + " " + strings.Join(segments, "/")
}

// isIDSegment reports whether a path segment is a record identifier: all
// digits or a UUID. The ":id" placeholder itself is not an identifier, which
// keeps normalization idempotent.
func isIDSegment(segment string) bool {
	if segment == "" || segment == ":id" {
		return false
	}
	if isDigits(segment) {
		return true
	}
	if len(segment) == 36 {
		if _, err := uuid.Parse(segment); err == nil {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
