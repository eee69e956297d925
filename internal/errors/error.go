package errors

import (
	stderrors "errors"
	"fmt"
)

// Category represents the kind of error.
type Category string

const (
	CategoryConfig    Category = "config"
	CategoryRuntime   Category = "runtime"
	CategoryTransport Category = "transport"
	CategoryCLI       Category = "cli"
)

// TurboError is a structured error with a code, an explanation and a hint.
type TurboError struct {
	// Code is a unique error identifier (e.g., "T001").
	Code string

	// Category is the error kind.
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Source names where the error was found, such as a config file and
	// field or a cache key.
	Source string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *TurboError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Source != "" {
		msg += " (" + e.Source + ")"
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *TurboError) Unwrap() error {
	return e.Wrapped
}

// Is matches another TurboError by code.
func (e *TurboError) Is(target error) bool {
	t, ok := target.(*TurboError)
	return ok && t.Code != "" && t.Code == e.Code
}

// WithSource records where the error was found.
func (e *TurboError) WithSource(s string) *TurboError {
	e.Source = s
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *TurboError) WithSuggestion(s string) *TurboError {
	e.Suggestion = s
	return e
}

// WithDetail replaces the registered explanation.
func (e *TurboError) WithDetail(d string) *TurboError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *TurboError) Wrap(err error) *TurboError {
	e.Wrapped = err
	return e
}

// New creates a TurboError from a registered error code.
func New(code string) *TurboError {
	template, ok := registry[code]
	if !ok {
		return &TurboError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &TurboError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
	}
}

// Newf creates a TurboError with a formatted message and no code.
func Newf(category Category, format string, args ...any) *TurboError {
	return &TurboError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps err in a TurboError with code unless it already is one.
func FromError(err error, code string) *TurboError {
	if err == nil {
		return nil
	}
	var te *TurboError
	if stderrors.As(err, &te) {
		return te
	}
	return New(code).Wrap(err)
}

// Code returns the code of the first TurboError in err's chain.
func Code(err error) string {
	var te *TurboError
	if stderrors.As(err, &te) {
		return te.Code
	}
	return ""
}
