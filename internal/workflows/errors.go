package workflows

import "errors"

// Domain errors for workflow operations.
var (
	ErrNotFound         = errors.New("workflow not found")
	ErrDuplicate        = errors.New("workflow already exists")
	ErrInvalidState     = errors.New("operation not valid for workflow state")
	ErrActionNotAllowed = errors.New("action not allowed")
)
