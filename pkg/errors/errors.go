package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes, grouped by the phase that detects them. Configuration and
// catalog codes are always fatal and surface before any filesystem mutation.
const (
	// General errors
	ErrUnknown      ErrorCode = "UNKNOWN"
	ErrInternal     ErrorCode = "INTERNAL"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"

	// Configuration errors
	ErrConfigLoad      ErrorCode = "CONFIG_LOAD"
	ErrConfigParse     ErrorCode = "CONFIG_PARSE"
	ErrDirUnknown      ErrorCode = "DIR_UNKNOWN"
	ErrDirCycle        ErrorCode = "DIR_CYCLE"
	ErrDirNotAbsolute  ErrorCode = "DIR_NOT_ABSOLUTE"
	ErrReservedToken   ErrorCode = "RESERVED_TOKEN"
	ErrProgramNotFound ErrorCode = "PROGRAM_NOT_FOUND"

	// Catalog errors
	ErrTargetDuplicate ErrorCode = "TARGET_DUPLICATE"
	ErrTargetNotFound  ErrorCode = "TARGET_NOT_FOUND"
	ErrTargetInvalid   ErrorCode = "TARGET_INVALID"
	ErrSourceMissing   ErrorCode = "SOURCE_MISSING"
	ErrModeInvalid     ErrorCode = "MODE_INVALID"

	// Execution errors
	ErrDirCreate      ErrorCode = "DIR_CREATE"
	ErrFileCopy       ErrorCode = "FILE_COPY"
	ErrFileChmod      ErrorCode = "FILE_CHMOD"
	ErrSymlinkCreate  ErrorCode = "SYMLINK_CREATE"
	ErrStripFailed    ErrorCode = "STRIP_FAILED"
	ErrInstallProgram ErrorCode = "INSTALL_PROGRAM"

	// Run-target errors
	ErrRunSpawn ErrorCode = "RUN_SPAWN"
)

// InstallError represents a structured error with code and details
type InstallError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *InstallError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *InstallError) Unwrap() error {
	return e.Wrapped
}

// Is matches errors by code
func (e *InstallError) Is(target error) bool {
	var targetErr *InstallError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new InstallError with the given code and message
func New(code ErrorCode, message string) *InstallError {
	return &InstallError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new InstallError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *InstallError {
	return &InstallError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with an InstallError
func Wrap(err error, code ErrorCode, message string) *InstallError {
	if err == nil {
		return nil
	}
	return &InstallError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *InstallError {
	if err == nil {
		return nil
	}
	return &InstallError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *InstallError) WithDetail(key string, value interface{}) *InstallError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var installErr *InstallError
	if errors.As(err, &installErr) {
		return installErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not an InstallError
func GetErrorCode(err error) ErrorCode {
	var installErr *InstallError
	if errors.As(err, &installErr) {
		return installErr.Code
	}
	return ErrUnknown
}
