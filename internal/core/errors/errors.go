// Package errors defines the error taxonomy shared by the MVRP core.
package errors

import (
	"errors"
	"fmt"
)

// Error codes carried by DomainError.
const (
	CodeLoad                 = "LOAD_ERROR"
	CodeConfig               = "CONFIG_ERROR"
	CodeHandshake            = "HANDSHAKE_ERROR"
	CodeMalformedRequestLine = "MALFORMED_REQUEST_LINE"
	CodeMalformedRequest     = "MALFORMED_REQUEST"
	CodeMalformedResponse    = "MALFORMED_RESPONSE"
	CodeIO                   = "IO_ERROR"
)

// DomainError represents a classified failure in the MVRP core.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError carrying the same code, so callers can write
// errors.Is(err, ErrLoad) regardless of the message or wrapped cause.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Base errors, one per kind.
var (
	// ErrLoad: identity material is missing, unreadable or ambiguous.
	ErrLoad = &DomainError{
		Code:    CodeLoad,
		Message: "failed to load identity material",
	}

	// ErrConfig: a trust context cannot be constructed.
	ErrConfig = &DomainError{
		Code:    CodeConfig,
		Message: "invalid trust configuration",
	}

	ErrHandshake = &DomainError{
		Code:    CodeHandshake,
		Message: "tls handshake failed",
	}

	ErrMalformedRequestLine = &DomainError{
		Code:    CodeMalformedRequestLine,
		Message: "malformed request line",
	}

	ErrMalformedRequest = &DomainError{
		Code:    CodeMalformedRequest,
		Message: "malformed request",
	}

	// ErrMalformedResponse is returned by clients that decode a status line
	// they cannot understand.
	ErrMalformedResponse = &DomainError{
		Code:    CodeMalformedResponse,
		Message: "malformed response",
	}

	ErrIO = &DomainError{
		Code:    CodeIO,
		Message: "i/o failure",
	}
)

// NewDomainError creates a new domain error with context
func NewDomainError(base *DomainError, err error) error {
	return &DomainError{
		Code:    base.Code,
		Message: base.Message,
		Err:     err,
	}
}

// Newf creates a domain error of the given kind with a specific message.
func Newf(base *DomainError, format string, args ...any) error {
	return &DomainError{
		Code:    base.Code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrapf creates a domain error of the given kind with a specific message and cause.
func Wrapf(base *DomainError, err error, format string, args ...any) error {
	return &DomainError{
		Code:    base.Code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// CodeOf returns the code of the first DomainError in err's chain, or "" if none.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s", e.Field, e.Value, e.Message)
}
