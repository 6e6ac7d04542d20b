package cameras

import (
	"errors"
	"fmt"
)

// Error is a service level failure. Driver errors pass through as Cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Error codes
const (
	ErrCodeCameraNotFound  = "CAMERA_NOT_FOUND"
	ErrCodeCaptureActive   = "CAPTURE_ACTIVE"
	ErrCodeCaptureInactive = "CAPTURE_INACTIVE"
	ErrCodeInvalidParams   = "INVALID_PARAMS"
	ErrCodePresetError     = "PRESET_ERROR"
)

// NewError creates a service error.
func NewError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// HasCode reports whether err carries a service error with code.
func HasCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
