package operation

import "errors"

var (
	ErrOperationInProgress = errors.New("site already has an operation in progress")
	ErrOperationNotFound   = errors.New("operation not found")
	ErrAlreadyStarted      = errors.New("operation has already started")
	ErrNotClearable        = errors.New("operation cannot be cleared by this user")
	ErrOperationRunning    = errors.New("operation is still running")
	ErrSiteMissing         = errors.New("operation has no site")
)
