// Package shared holds the cross-context error type and the idempotency port.
package shared

import "errors"

// Error codes surfaced in API error responses
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeProvider     = "PROVIDER_ERROR"
	CodeInternal     = "INTERNAL_ERROR"
)

// DomainError carries an API error code alongside the underlying cause.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.err != nil && e.Message == "" {
		return e.err.Error()
	}
	return e.Message
}

// Unwrap exposes the cause to errors.Is
func (e *DomainError) Unwrap() error {
	return e.err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// WrapDomainError tags err with an API code, keeping err's message
func WrapDomainError(code string, err error) *DomainError {
	return &DomainError{Code: code, Message: err.Error(), err: err}
}

// CodeOf returns the code of the first DomainError in err's chain, or
// CodeInternal
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
