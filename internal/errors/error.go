package errors

import (
	"fmt"
)

// Category represents the type of error.
type Category string

const (
	CategoryCapability Category = "capability"
	CategoryConfig     Category = "config"
	CategoryResolution Category = "resolution"
	CategoryStorage    Category = "storage"
	CategoryProtocol   Category = "protocol"
	CategoryCLI        Category = "cli"
)

// Error is a structured error with a code, category and optional hints.
type Error struct {
	// Code is a unique error identifier (e.g., "Q001").
	Code string

	// Category is the error type (capability, config, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Wrapped != nil {
		return msg + ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is an *Error with the same code.
// Errors without a code only match themselves.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Code == "" || t.Code == "" {
		return e == t
	}
	return e.Code == t.Code
}

// WithSuggestion adds a fix suggestion to the error.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *Error) WithDetail(d string) *Error {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// New creates an Error from a registered error code.
func New(code string) *Error {
	template, ok := registry[code]
	if !ok {
		return &Error{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &Error{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
	}
}

// Newf creates a new Error with a formatted message (no code).
func Newf(category Category, format string, args ...any) *Error {
	return &Error{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in an Error.
func FromError(err error, code string) *Error {
	if err == nil {
		return nil
	}
	if qe, ok := err.(*Error); ok {
		return qe
	}
	return New(code).Wrap(err)
}

// Code returns the code of the first *Error in err's chain, or "".
func Code(err error) string {
	for err != nil {
		if qe, ok := err.(*Error); ok && qe.Code != "" {
			return qe.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
