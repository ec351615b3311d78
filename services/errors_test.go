package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeNotFound, "resource not found", baseErr)

	assert.Equal(t, ErrorTypeNotFound, domainErr.Type)
	assert.Equal(t, "resource not found", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name:    "error with wrapped error",
			err:     &DomainError{Type: ErrorTypeNotFound, Message: "User not found", Err: errors.New("db error")},
			wantMsg: "not_found: User not found (db error)",
		},
		{
			name:    "error without wrapped error",
			err:     &DomainError{Type: ErrorTypeValidation, Message: "invalid input"},
			wantMsg: "validation: invalid input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"same sentinel", ErrEmailExists, ErrEmailExists, true},
		{"wrapped sentinel", ErrEmailConflict.Wrap(errors.New("dup")), ErrEmailConflict, true},
		{"same type different message", ErrEmailExists, ErrInvalidPassword, false},
		{"conflicts are distinct", ErrEmailConflict, ErrAuthModeConflict, false},
		{"type-only target", ErrOutOfStock, &DomainError{Type: ErrorTypeValidation}, true},
		{"different type", ErrUserNotFound, ErrInvalidInput, false},
		{"not a domain error", ErrUserNotFound, errors.New("User not found"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestDomainError_WrapDoesNotMutateSentinel(t *testing.T) {
	cause := errors.New("unique violation")
	wrapped := ErrEmailConflict.Wrap(cause)

	assert.Nil(t, ErrEmailConflict.Err)
	assert.Equal(t, cause, errors.Unwrap(wrapped))
	assert.NotSame(t, ErrEmailConflict, wrapped)
}

func TestDomainError_WithDetail(t *testing.T) {
	err := NewDomainError(ErrorTypeValidation, "validation error", nil)
	err.WithDetail("field", "email").WithDetail("value", "invalid-email")

	assert.Equal(t, "email", err.Details["field"])
	assert.Equal(t, "invalid-email", err.Details["value"])
}

func TestErrorTypePredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		pred func(error) bool
		want bool
	}{
		{"not found", ErrSweetNotFound, IsNotFoundError, true},
		{"wrapped not found", fmt.Errorf("wrapped: %w", ErrUserNotFound), IsNotFoundError, true},
		{"validation", ErrOutOfStock, IsValidationError, true},
		{"login failure is validation", ErrInvalidPassword, IsValidationError, true},
		{"unauthorized", ErrInvalidWebhookSignature, IsUnauthorizedError, true},
		{"forbidden", NewDomainError(ErrorTypeForbidden, "access forbidden", nil), IsForbiddenError, true},
		{"conflict", ErrEmailConflict, IsConflictError, true},
		{"internal", WrapInternal("boom", errors.New("x")), IsInternalError, true},
		{"regular error", errors.New("regular"), IsNotFoundError, false},
		{"nil error", nil, IsConflictError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pred(tt.err))
		})
	}
}

func TestGetErrorMessage(t *testing.T) {
	assert.Equal(t, "Email already exists", GetErrorMessage(fmt.Errorf("register: %w", ErrEmailExists)))
	assert.Equal(t, "", GetErrorMessage(errors.New("plain")))
}

func TestGetErrorDetails(t *testing.T) {
	err := NewDomainError(ErrorTypeValidation, "validation error", nil)
	err.WithDetail("field", "email")

	details := GetErrorDetails(err)
	require.NotNil(t, details)
	assert.Equal(t, "email", details["field"])
	assert.Nil(t, GetErrorDetails(errors.New("regular error")))
}

func TestStoreUnavailableIsNotADomainError(t *testing.T) {
	assert.Equal(t, ErrorType(""), GetErrorType(ErrStoreUnavailable))
}
