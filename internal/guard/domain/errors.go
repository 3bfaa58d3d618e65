package domain

import (
	"github.com/hordu-ma/wuhao-tutor-sub002/internal/errors"
)

// Policy engine errors.
var (
	// ErrInvalidRule indicates a policy rule failed validation at registration.
	ErrInvalidRule = errors.Wrap(errors.ErrInvalidInput, "invalid policy rule")

	// ErrInvalidSubject indicates the identity collaborator produced an unusable subject.
	ErrInvalidSubject = errors.Wrap(errors.ErrUnauthorized, "invalid subject")
)
