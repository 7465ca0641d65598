package errors

import (
	stderrors "errors"
	"strings"
)

// Error is the domain error type with structured metadata.
type Error struct {
	Code       Code              // Machine-readable error code
	Message    string            // Internal message (for logs/telemetry)
	Metadata   map[string]string // Additional context for clients
	Violations []Violation       // Every failed rule for CodeValidationFailed
	Cause      error             // Wrapped underlying error
}

// Violation names one failed validation rule and the field path it applies to.
type Violation struct {
	Path    string `json:"path"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Violations) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Path+": "+v.Message)
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a simple domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithMetadata creates a domain error with metadata for clients.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Metadata: metadata,
	}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Validation creates a CodeValidationFailed error carrying every violation.
func Validation(message string, violations []Violation) *Error {
	return &Error{
		Code:       CodeValidationFailed,
		Message:    message,
		Violations: append([]Violation(nil), violations...),
	}
}

// CodeOf returns the code of the first domain error in err's chain.
func CodeOf(err error) Code {
	var domainErr *Error
	if stderrors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeUnknown
}

// As is errors.As specialised to *Error.
func As(err error) (*Error, bool) {
	var domainErr *Error
	if stderrors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}
