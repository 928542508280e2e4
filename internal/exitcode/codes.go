// Package exitcode defines structured exit codes for rum commands.
// These codes let scripts react to specific failures (unknown run,
// ambiguous prefix, run still running) without parsing error messages.
//
// # Exit Code Ranges
//
//   - 0: Success
//   - 1-9: General errors (usage, internal)
//   - 10-19: Run lookup errors (not found, ambiguous)
//   - 20-29: Permission/access errors
//   - 50-59: Run state conflicts
//
// # Usage
//
//	return exitcode.RunNotFound("d00b")            // Exit code 10
//	return exitcode.Newf(exitcode.ErrUsage, "unknown signal: %s", kind)
//
//	code := exitcode.Code(err)  // Returns ErrGeneral for non-coded errors
package exitcode

import (
	"errors"
	"fmt"
)

// Exit codes for rum commands.
const (
	// Success indicates the command completed successfully.
	Success = 0

	// General errors (1-9)
	ErrGeneral  = 1 // General/unknown error
	ErrUsage    = 2 // Invalid arguments or usage
	ErrInternal = 3 // Internal error (bug)

	// Run lookup (10-19)
	ErrRunNotFound = 10 // No run matches the prefix
	ErrAmbiguous   = 11 // Prefix matches several runs

	// Permission/access errors (20-29)
	ErrPermission = 20 // Permission denied

	// Run state conflicts (50-59)
	ErrStillRunning = 50 // Operation needs a finished run
	ErrNotRunning   = 51 // Operation needs a running run
)

// Error wraps an error with a specific exit code.
type Error struct {
	Code    int
	Message string
	Cause   error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new coded error.
func New(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap wraps an existing error with a code and message.
func Wrap(code int, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Wrapf wraps an existing error with a code and printf-style message.
func Wrapf(code int, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Newf creates a new coded error with printf-style formatting.
func Newf(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Code extracts the exit code from an error.
// Returns ErrGeneral (1) if the error doesn't have a code.
func Code(err error) int {
	if err == nil {
		return Success
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ErrGeneral
}

// Is checks if an error has a specific exit code.
func Is(err error, code int) bool {
	return Code(err) == code
}

// RunNotFound returns an error for a prefix that matches no run.
func RunNotFound(prefix string) *Error {
	return Newf(ErrRunNotFound, "no run matches %q", prefix)
}

// PermissionDenied returns a permission error.
func PermissionDenied(msg string) *Error {
	return New(ErrPermission, msg)
}
