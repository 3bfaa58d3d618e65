package domain

// Subject is the acting principal for one evaluation. It is supplied fresh by
// the identity collaborator on every call and never cached beyond a single
// evaluation.
type Subject struct {
	UserID        string
	Role          Role
	Authenticated bool
	TokenValid    bool
	// Permissions holds fine-grained grants checked against
	// PolicyRule.RequiredPermission by the permission collaborator.
	Permissions []string
	// Memberships holds subject-side collections for scope checks, keyed by
	// membership field name (e.g. "class_ids" -> the teacher's class list).
	Memberships map[string][]string
}

// HasMembership reports whether value appears in the subject's collection
// named by field. An absent collection never matches.
func (s *Subject) HasMembership(field, value string) bool {
	for _, v := range s.Memberships[field] {
		if v == value {
			return true
		}
	}
	return false
}
