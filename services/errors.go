package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeInternal     ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches a target of the same type. A target with a message must also
// match the message, so errors.Is(err, ErrEmailExists) does not match ErrEmailConflict.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type && (t.Message == "" || t.Message == e.Message)
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Wrap returns a copy of e carrying cause. Sentinels are never mutated.
func (e *DomainError) Wrap(cause error) *DomainError {
	c := NewDomainError(e.Type, e.Message, cause)
	for k, v := range e.Details {
		c.Details[k] = v
	}
	return c
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// ErrStoreUnavailable signals that no user store is wired. Callers treat it
// as "skip reconciliation", not as a failure.
var ErrStoreUnavailable = errors.New("user store unavailable")

var (
	// Not Found Errors
	ErrUserNotFound  = NewDomainError(ErrorTypeNotFound, "User not found", nil)
	ErrSweetNotFound = NewDomainError(ErrorTypeNotFound, "Sweet not found", nil)

	// Validation Errors
	ErrInvalidInput    = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidQuantity = NewDomainError(ErrorTypeValidation, "Quantity must be positive", nil)
	ErrOutOfStock      = NewDomainError(ErrorTypeValidation, "Sweet out of stock", nil)
	ErrInvalidPayload  = NewDomainError(ErrorTypeValidation, "invalid webhook payload", nil)

	// Local credential errors. These surface as 400 with the message as-is.
	ErrEmailExists     = NewDomainError(ErrorTypeValidation, "Email already exists", nil)
	ErrInvalidPassword = NewDomainError(ErrorTypeValidation, "Invalid password", nil)

	// Authorization Errors
	ErrUnauthorized            = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInvalidWebhookSignature = NewDomainError(ErrorTypeUnauthorized, "Invalid webhook signature", nil)
	ErrMissingWebhookHeaders   = NewDomainError(ErrorTypeUnauthorized, "Missing webhook signature headers", nil)

	// Conflict Errors
	ErrEmailConflict    = NewDomainError(ErrorTypeConflict, "email already belongs to another user", nil)
	ErrAuthModeConflict = NewDomainError(ErrorTypeConflict, "user is bound to a different identity", nil)
	ErrConcurrentUpdate = NewDomainError(ErrorTypeConflict, "concurrent update detected", nil)
)

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnauthorized
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	return GetErrorType(err) == ErrorTypeForbidden
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return GetErrorType(err) == ErrorTypeConflict
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorMessage returns the message of a domain error without its cause,
// or empty string if not a domain error
func GetErrorMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
