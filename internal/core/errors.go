package core

import (
	"errors"
	"fmt"
)

// Error codes for domain errors.
const (
	ErrCodeConflict        = "conflict"
	ErrCodeInvalidUsername = "invalid_username"
	ErrCodeUnknownSession  = "unknown_session"
	ErrCodeBadRequest      = "bad_request"
	ErrCodeUnsupported     = "unsupported_frame"
	ErrCodeStorageFailure  = "storage_failure"
)

var (
	ErrConflict         = errors.New("session already registered")
	ErrInvalidUsername  = errors.New("invalid username")
	ErrUnknownSession   = errors.New("unknown session")
	ErrPeerClosed       = errors.New("peer closed connection")
	ErrUnsupportedFrame = errors.New("unsupported frame")
	ErrStorage          = errors.New("message log append failed")
	ErrSessionClosed    = errors.New("session closed")
)

// CoreError wraps a code and human-readable message around a sentinel error.
type CoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

func coreError(code string, err error, format string, args ...any) *CoreError {
	return &CoreError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// ErrorCode returns the domain code carried by err, or "" when err is not a CoreError.
func ErrorCode(err error) string {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
