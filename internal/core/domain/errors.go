package domain

import "errors"

// Common domain errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
)

// Link workflow errors. Every layer reports failures in these terms so the
// portal can tell a dead link from a retryable fault.
var (
	// ErrTokenInvalid covers unknown, expired, consumed and wrong-purpose links.
	ErrTokenInvalid = errors.New("link is invalid or has expired")
	// ErrTransient is a network or server fault; the caller may retry.
	ErrTransient = errors.New("temporary failure, please try again")
	// ErrAlreadySubmitted guards one-shot writes.
	ErrAlreadySubmitted = errors.New("already submitted")
	// ErrNotAvailable means the invoice gate is still locked.
	ErrNotAvailable = errors.New("invoice upload is not available yet")
	// ErrValidation is wrapped by every *ValidationError.
	ErrValidation = errors.New("validation failed")
)

// ValidationError is a field-level input rejection.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// AsValidation extracts a *ValidationError from err.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
