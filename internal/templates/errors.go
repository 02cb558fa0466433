package templates

import "errors"

// Domain errors for template operations.
var (
	ErrNotFound  = errors.New("template not found")
	ErrDuplicate = errors.New("template already exists")
	ErrInvalid   = errors.New("invalid template")
)
