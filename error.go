package dailybrief

import (
	"bytes"
	"errors"
	"fmt"
)

const (
	ErrInvalid      = "invalid"
	ErrUnauthorized = "unauthorized"
	ErrForbidden    = "forbidden"
	ErrNotFound     = "not_found"
	ErrConflict     = "conflict"
	ErrUnavailable  = "unavailable"
	ErrInternal     = "internal"
)

var (
	// ErrNoIssueFound is returned when the store holds no newsletter issue.
	ErrNoIssueFound = &Error{Code: ErrNotFound, Message: "no newsletter issue found"}

	// ErrInvalidEmail is returned for addresses that do not look like an email.
	ErrInvalidEmail = &Error{Code: ErrInvalid, Message: "Enter a valid email."}
)

type Error struct {
	Code    string
	Message string
	Op      string
	Err     error
}

// ErrorCode returns the code of the first *Error in the chain, or ErrInternal.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) {
		return ErrInternal
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Err != nil {
		return ErrorCode(e.Err)
	}

	return ErrInternal
}

// ErrorMessage returns the human readable message of err.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) {
		return "An internal error has occurred."
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return ErrorMessage(e.Err)
	}

	return "An internal error has occurred."
}

func (e *Error) Error() string {
	var buf bytes.Buffer

	if e.Op != "" {
		fmt.Fprintf(&buf, "%s: ", e.Op)
	}

	if e.Err != nil {
		buf.WriteString(e.Err.Error())
	} else {
		if e.Code != "" {
			fmt.Fprintf(&buf, "<%s> ", e.Code)
		}
		buf.WriteString(e.Message)
	}

	return buf.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error carrying the same code and message,
// so that wrapped sentinels such as ErrNoIssueFound match with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && e.Code == t.Code && e.Message == t.Message
}

// Unavailable wraps a store failure.
func Unavailable(op string, err error) error {
	return &Error{Code: ErrUnavailable, Op: op, Err: err}
}

// NotFound returns a not_found error for op.
func NotFound(op, message string) error {
	return &Error{Code: ErrNotFound, Op: op, Message: message}
}
