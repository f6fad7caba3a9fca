// Package pdferr defines the error taxonomy shared by the document, page and
// table packages. Errors carry a Code so callers can branch with errors.Is
// against the exported sentinels.
package pdferr

import (
	"context"
	"errors"
	"fmt"
)

// Code classifies a failure.
type Code string

const (
	InvalidArgument Code = "invalid_argument" // absent or empty required input
	IndexOutOfRange Code = "index_out_of_range"
	NotFound        Code = "not_found" // load from a source that does not exist
	Disposed        Code = "disposed"  // use of a closed document, page or surface
	Canceled        Code = "canceled"
)

// Error is a classified failure of a single operation.
type Error struct {
	// Code identifies the failure class.
	Code Code

	// Op names the operation that failed, e.g. "document.RemovePageAt".
	Op string

	// Message describes what went wrong.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for error chain inspection.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidArgument = &Error{Code: InvalidArgument}
	ErrIndexOutOfRange = &Error{Code: IndexOutOfRange}
	ErrNotFound        = &Error{Code: NotFound}
	ErrDisposed        = &Error{Code: Disposed}
	ErrCanceled        = &Error{Code: Canceled}
)

// New creates an error with the given code.
func New(code Code, op, format string, args ...interface{}) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error.
func Wrap(code Code, op string, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Invalid reports an absent or empty required argument.
func Invalid(op, format string, args ...interface{}) *Error {
	return New(InvalidArgument, op, format, args...)
}

// OutOfRange reports an index outside [0, count).
func OutOfRange(op string, index, count int) *Error {
	return New(IndexOutOfRange, op, "index %d not in [0, %d)", index, count)
}

// Closed reports use of a released object.
func Closed(op, what string) *Error {
	return New(Disposed, op, "%s is closed", what)
}

// CheckContext returns a Canceled error wrapping ctx.Err() once ctx is done.
// A nil context is never canceled.
func CheckContext(ctx context.Context, op string) error {
	if ctx == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return &Error{Code: Canceled, Op: op, Cause: err}
	}
	return nil
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
