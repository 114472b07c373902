package seo

import (
	"errors"
	"strings"
)

// ErrNotFound is wrapped by every error reporting a missing redirect,
// snapshot or version.
var ErrNotFound = errors.New("not found")

// ErrDuplicateSource is returned by a RedirectStore when a write collides
// with an existing source.
var ErrDuplicateSource = errors.New("duplicate redirect source")

// Validation error codes.
const (
	CodeInvalidSource   = "invalid_source"
	CodeInvalidTarget   = "invalid_target"
	CodeInvalidStatus   = "invalid_status"
	CodeDuplicateSource = "duplicate_source"
	CodeRedirectLoop    = "redirect_loop"
	CodeInvalidDocument = "invalid_document"
)

// FieldError attributes a validation failure to one input field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError collects field-level failures for a single operation.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Add records a failure for field.
func (e *ValidationError) Add(field, code, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Code: code, Message: message})
}

// HasCode reports whether any recorded failure carries code.
func (e *ValidationError) HasCode(code string) bool {
	for _, fe := range e.Errors {
		if fe.Code == code {
			return true
		}
	}
	return false
}

// errOrNil returns e as an error only if it holds failures.
func (e *ValidationError) errOrNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// AsValidationError extracts a *ValidationError from err's chain.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
