// Package errors defines the stable error codes for sp.
package errors

import (
	"errors"
	"fmt"
	"io"
)

// Code is a stable error code string.
type Code string

// Error codes.
const (
	EUsage Code = "E_USAGE"

	// Session cannot start: log collision, bad frame rate, bad limits.
	EConfiguration Code = "E_CONFIGURATION"
	// A reward value or payoff setting cannot be stored losslessly.
	EEncoding Code = "E_ENCODING"
	// A replay query has no matching row, or the log is malformed.
	EReplayData Code = "E_REPLAY_DATA"
	// Log or catalog I/O failed.
	EIO Code = "E_IO"

	EInvalidState    Code = "E_INVALID_STATE"    // operation not allowed in the current trial state
	EResponseTimeout Code = "E_RESPONSE_TIMEOUT" // participant missed the response deadline
)

// Error is the standard error type for sp errors.
type Error struct {
	Code    Code
	Msg     string
	Cause   error
	Details map[string]string
}

// Error returns "CODE: message".
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Msg: msg}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// NewWithDetails creates an Error with code, message, and details.
// Details map is copied (nil if empty).
func NewWithDetails(code Code, msg string, details map[string]string) error {
	return &Error{Code: code, Msg: msg, Details: copyDetails(details)}
}

// Wrap creates an Error wrapping an underlying error.
func Wrap(code Code, msg string, err error) error {
	return &Error{Code: code, Msg: msg, Cause: err}
}

// GetCode extracts the error code from err, or "" if err is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && GetCode(err) == code
}

func copyDetails(details map[string]string) map[string]string {
	if len(details) == 0 {
		return nil
	}
	cp := make(map[string]string, len(details))
	for k, v := range details {
		cp[k] = v
	}
	return cp
}

// ExitCode returns the process exit code for err.
// 0 for nil, 2 for E_USAGE, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if GetCode(err) == EUsage {
		return 2
	}
	return 1
}

// Print writes err to w in the stderr format:
//
//	error_code: <CODE>
//	<message>
func Print(w io.Writer, err error) {
	if err == nil {
		return
	}
	var e *Error
	if !errors.As(err, &e) {
		_, _ = fmt.Fprintln(w, err.Error())
		return
	}
	_, _ = fmt.Fprintf(w, "error_code: %s\n", e.Code)
	msg := e.Msg
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	_, _ = fmt.Fprintln(w, msg)
	for k, v := range e.Details {
		_, _ = fmt.Fprintf(w, "  %s: %s\n", k, v)
	}
}
