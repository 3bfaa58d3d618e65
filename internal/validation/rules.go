// Package validation provides custom validation rules for the application.
package validation

import (
	"regexp"
	"strings"

	validation "github.com/jellydator/validation"

	apperrors "github.com/hordu-ma/wuhao-tutor-sub002/internal/errors"
)

var (
	// clockTimeRegex matches 24-hour wall-clock times like "08:00" or "23:59".
	clockTimeRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

	// featureKeyRegex matches dotted feature identifiers like "homework.delete".
	featureKeyRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)+$`)
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)

// ClockTime validates a 24-hour "HH:MM" wall-clock time
var ClockTime = validation.NewStringRuleWithError(
	func(s string) bool {
		return clockTimeRegex.MatchString(s)
	},
	validation.NewError("validation_clock_time", "must be a wall-clock time in HH:MM format"),
)

// ResourceKey validates a resource key: either an HTTP-style
// "<METHOD> <path>" pair or a dotted feature identifier
var ResourceKey = validation.NewStringRuleWithError(
	func(s string) bool {
		method, path, found := strings.Cut(s, " ")
		if found {
			return method != "" && strings.HasPrefix(path, "/")
		}
		return featureKeyRegex.MatchString(s)
	},
	validation.NewError(
		"validation_resource_key",
		"must be '<METHOD> /path' or a dotted feature identifier",
	),
)
