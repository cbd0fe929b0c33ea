package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a history error code.
type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"   // 400
	ErrNotFound         ErrorCode = "NOT_FOUND"         // 404
	ErrImageTooLarge    ErrorCode = "IMAGE_TOO_LARGE"   // 413
	ErrUnsupportedImage ErrorCode = "UNSUPPORTED_IMAGE" // 415
	ErrCorruptStore     ErrorCode = "CORRUPT_STORE"     // 500, fatal at load
	ErrIOFailure        ErrorCode = "IO_FAILURE"        // 500
	ErrCancelled        ErrorCode = "CANCELLED"         // 499
	ErrInternal         ErrorCode = "INTERNAL"          // 500
)

// HistoryError represents a structured error with code, status, and details.
type HistoryError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *HistoryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *HistoryError) Unwrap() error {
	return e.cause
}

// Public reports whether the message is safe to show to HTTP and MCP clients.
// Store and I/O failures carry file paths and are reported generically.
func (e *HistoryError) Public() bool {
	switch e.Code {
	case ErrInvalidRequest, ErrNotFound, ErrImageTooLarge, ErrUnsupportedImage, ErrCancelled:
		return true
	}
	return false
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *HistoryError {
	return &HistoryError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a history entry that does not exist.
func NewNotFound(id string) *HistoryError {
	return &HistoryError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("history entry not found: %s", id),
		Details: map[string]any{"id": id},
	}
}

// NewPageNotFound creates a 404 error for an archive page that does not exist.
func NewPageNotFound(page string) *HistoryError {
	return &HistoryError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("history page not found: %s", page),
		Details: map[string]any{"page": page},
	}
}

// NewImageTooLarge creates a 413 error when an upload exceeds the size limit.
func NewImageTooLarge(max, actual int) *HistoryError {
	return &HistoryError{
		Code:    ErrImageTooLarge,
		Status:  413,
		Message: fmt.Sprintf("image exceeds maximum size: %d bytes (max %d)", actual, max),
		Details: map[string]any{"max_bytes": max, "actual_bytes": actual},
	}
}

// NewUnsupportedImage creates a 415 error for a disallowed file extension.
func NewUnsupportedImage(ext string, allowed []string) *HistoryError {
	return &HistoryError{
		Code:    ErrUnsupportedImage,
		Status:  415,
		Message: fmt.Sprintf("unsupported image extension %q", ext),
		Details: map[string]any{"extension": ext, "allowed": allowed},
	}
}

// NewCorruptStore creates an error for an on-disk store that cannot be parsed.
// The file is left untouched for manual recovery.
func NewCorruptStore(path string, err error) *HistoryError {
	return &HistoryError{
		Code:    ErrCorruptStore,
		Status:  500,
		Message: fmt.Sprintf("history file is corrupt: %s: %v", path, err),
		Details: map[string]any{"path": path},
		cause:   err,
	}
}

// NewIOFailure creates an error for a write, rename or delete that failed.
func NewIOFailure(op, path string, err error) *HistoryError {
	return &HistoryError{
		Code:    ErrIOFailure,
		Status:  500,
		Message: fmt.Sprintf("%s %s: %v", op, path, err),
		Details: map[string]any{"op": op, "path": path},
		cause:   err,
	}
}

// NewCancelled creates an error for an operation abandoned before it started.
func NewCancelled(operation string) *HistoryError {
	return &HistoryError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *HistoryError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &HistoryError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// As returns err as a *HistoryError, wrapping unknown errors as internal.
func As(err error) *HistoryError {
	var hErr *HistoryError
	if stderrors.As(err, &hErr) {
		return hErr
	}
	return NewInternal(err)
}

// Is checks if an error is (or wraps) a HistoryError with the given code.
func Is(err error, code ErrorCode) bool {
	var hErr *HistoryError
	if stderrors.As(err, &hErr) {
		return hErr.Code == code
	}
	return false
}
