package errors

import (
	stderrors "errors"
	"fmt"
)

// Category represents the type of error.
type Category string

const (
	CategoryDecode   Category = "decode"
	CategoryFetch    Category = "fetch"
	CategoryAdapter  Category = "adapter"
	CategoryConfig   Category = "config"
	CategoryProtocol Category = "protocol"
	CategoryCLI      Category = "cli"
)

// TableError is a structured error with a code, suggestion and
// documentation link.
type TableError struct {
	// Code is a unique error identifier (e.g., "T010").
	Code string

	// Category is the error type (fetch, config, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// DocURL is a link to documentation about this error.
	DocURL string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *TableError) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *TableError) Unwrap() error {
	return e.Wrapped
}

// Is matches another TableError with the same code.
func (e *TableError) Is(target error) bool {
	t, ok := target.(*TableError)
	if !ok || t.Code == "" {
		return false
	}
	return e.Code == t.Code
}

// WithSuggestion adds a fix suggestion to the error.
func (e *TableError) WithSuggestion(s string) *TableError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *TableError) WithDetail(d string) *TableError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *TableError) Wrap(err error) *TableError {
	e.Wrapped = err
	return e
}

// New creates a TableError from a registered error code.
func New(code string) *TableError {
	template, ok := registry[code]
	if !ok {
		return &TableError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &TableError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		DocURL:   template.DocURL,
	}
}

// Newf creates a new TableError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *TableError {
	return &TableError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a TableError.
func FromError(err error, code string) *TableError {
	if err == nil {
		return nil
	}
	var te *TableError
	if stderrors.As(err, &te) {
		return te
	}
	return New(code).Wrap(err)
}

// Code returns the code of the first TableError in err's chain.
func Code(err error) string {
	var te *TableError
	if stderrors.As(err, &te) {
		return te.Code
	}
	return ""
}
