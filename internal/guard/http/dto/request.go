// Package dto provides data transfer objects for the guard HTTP API.
package dto

import (
	validation "github.com/jellydator/validation"

	guardDomain "github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/domain"
	customValidation "github.com/hordu-ma/wuhao-tutor-sub002/internal/validation"
)

// CheckRequest asks the engine to evaluate one action for the caller.
type CheckRequest struct {
	ResourceKey string            `json:"resource_key"`
	Fields      map[string]string `json:"fields,omitempty"`
	FileSize    int64             `json:"file_size,omitempty"`
	FileType    string            `json:"file_type,omitempty"`
	Confirmed   bool              `json:"confirmed,omitempty"`
}

// Validate checks if the check request is valid.
func (r *CheckRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ResourceKey,
			validation.Required,
			customValidation.NotBlank,
			customValidation.ResourceKey,
		),
		validation.Field(&r.FileSize,
			validation.Min(int64(0)),
		),
	)
}

// ToEvalContext converts the request's per-call facts into an evaluation
// context. Returns nil when the request carries none, keeping the evaluation
// cache-eligible.
func (r *CheckRequest) ToEvalContext() *guardDomain.EvalContext {
	if len(r.Fields) == 0 && r.FileSize == 0 && r.FileType == "" && !r.Confirmed {
		return nil
	}
	return &guardDomain.EvalContext{
		Fields:    r.Fields,
		FileSize:  r.FileSize,
		FileType:  r.FileType,
		Confirmed: r.Confirmed,
	}
}

// ClearCacheRequest drops cached decisions, for one subject or for everyone.
type ClearCacheRequest struct {
	SubjectID string `json:"subject_id,omitempty"`
}
