package domain

// EvalContext carries resource-specific facts for one evaluation: the owner of
// the target record, the class it belongs to, attached file attributes, and
// whether the user already confirmed a sensitive operation.
//
// A missing field passes its condition: absence of an owner claim is not
// itself a denial, since the resource may be ownerless. Callers that hold the
// facts are responsible for passing them.
type EvalContext struct {
	// Fields holds string-valued resource facts looked up by ownership and
	// scope conditions (e.g. "resource_owner_id", "class_id").
	Fields map[string]string
	// FileSize is the attached file size in bytes. Zero means no file.
	FileSize int64
	// FileType is the attached file's media type. Empty means no file.
	FileType string
	// Confirmed indicates the user already confirmed this sensitive operation,
	// so the confirmation gate is skipped.
	Confirmed bool
}

// Field returns the named resource fact and whether it is present.
func (c *EvalContext) Field(name string) (string, bool) {
	if c == nil || c.Fields == nil {
		return "", false
	}
	value, ok := c.Fields[name]
	return value, ok
}

// IsEmpty reports whether the context carries no per-call facts. Only empty
// contexts are eligible for the decision cache; anything else conservatively
// forces a fresh evaluation.
func (c *EvalContext) IsEmpty() bool {
	if c == nil {
		return true
	}
	return len(c.Fields) == 0 && c.FileSize == 0 && c.FileType == "" && !c.Confirmed
}
