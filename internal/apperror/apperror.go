package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation error")
	ErrConflict            = errors.New("conflict")
	ErrViewSecretRequired  = errors.New("view secret required")
	ErrEditSecretNotSet    = errors.New("edit secret not set")
	ErrInvalidSecret       = errors.New("invalid secret")
	ErrSizeExceeded        = errors.New("size exceeded")
	ErrAllocationExhausted = errors.New("allocation exhausted")
	ErrStorage             = errors.New("storage failure")
)

// AppError carries a stable machine-readable code alongside the
// human-readable message. Handlers serialize Code directly; clients
// never have to parse Message.
type AppError struct {
	Err     error  // sentinel for errors.Is checks
	Code    string // stable code, e.g. "CODE_NOT_FOUND"
	Message string // human-readable error message
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(shortID string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Code:    "CODE_NOT_FOUND",
		Message: fmt.Sprintf("no snippet found with id %s", shortID),
	}
}

// ValidationFailed names the offending field in the message so clients
// can tell which input to fix.
func ValidationFailed(field, message string) *AppError {
	msg := message
	if field != "" {
		msg = fmt.Sprintf("%s: %s", field, message)
	}
	return &AppError{
		Err:     ErrValidation,
		Code:    "VALIDATION_FAILED",
		Message: msg,
	}
}

// Conflict signals a persistent-store uniqueness violation. The creation
// flow treats it as a retryable allocation failure, never as a crash.
func Conflict(shortID string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Code:    "CODE_CONFLICT",
		Message: fmt.Sprintf("snippet id %s already taken", shortID),
	}
}

func ViewSecretRequired() *AppError {
	return &AppError{
		Err:     ErrViewSecretRequired,
		Code:    "VIEW_SECRET_REQUIRED",
		Message: "a view secret is required to read this snippet",
	}
}

func EditSecretNotSet() *AppError {
	return &AppError{
		Err:     ErrEditSecretNotSet,
		Code:    "EDIT_SECRET_NOT_SET",
		Message: "this snippet has no edit secret and can never be updated",
	}
}

func InvalidSecret(kind string) *AppError {
	return &AppError{
		Err:     ErrInvalidSecret,
		Code:    "INVALID_SECRET",
		Message: fmt.Sprintf("invalid %s secret", kind),
	}
}

func SizeExceeded(size, limit int64) *AppError {
	return &AppError{
		Err:     ErrSizeExceeded,
		Code:    "SIZE_EXCEEDED",
		Message: fmt.Sprintf("content is %d bytes, limit is %d", size, limit),
	}
}

func AllocationExhausted() *AppError {
	return &AppError{
		Err:     ErrAllocationExhausted,
		Code:    "ALLOCATION_EXHAUSTED",
		Message: "could not allocate a free snippet id; identifier space under pressure",
	}
}

// Storage wraps a blob-store or metadata-store failure. The cause stays in
// the chain for logging but is never serialized to clients.
func Storage(op string, cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %s: %v", ErrStorage, op, cause),
		Code:    "STORAGE_FAILURE",
		Message: fmt.Sprintf("storage operation %s failed", op),
	}
}
