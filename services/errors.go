package services

import (
	"errors"
	"fmt"

	"github.com/upb/inventory-retrieval/internal/filter"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeStorage    ErrorType = "storage"
	ErrorTypeExternal   ErrorType = "external"
	ErrorTypeInternal   ErrorType = "internal"
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

// Is matches on type, or on the exact sentinel when the target carries a message.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if e.Type != t.Type {
		return false
	}
	return t.Message == "" || e.Message == t.Message
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
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

// Domain error variables. These are sentinels for errors.Is; wrap them with
// Wrap before attaching details so the shared values stay untouched.

var (
	// Not Found Errors
	ErrCollectionNotFound = NewDomainError(ErrorTypeNotFound, "collection not found", nil)

	// Validation Errors
	ErrInvalidAlpha         = NewDomainError(ErrorTypeValidation, "alpha must be within [0, 1]", nil)
	ErrInvalidTopK          = NewDomainError(ErrorTypeValidation, "k must be positive", nil)
	ErrEmptyQuery           = NewDomainError(ErrorTypeValidation, "query cannot be empty", nil)
	ErrUnknownColumn        = NewDomainError(ErrorTypeValidation, "unknown column", nil)
	ErrUnsupportedFilter    = NewDomainError(ErrorTypeValidation, "unsupported filter", nil)
	ErrNativeSearchDisabled = NewDomainError(ErrorTypeValidation, "native similarity search is disabled", nil)

	// Storage Errors
	ErrStorageFailure = NewDomainError(ErrorTypeStorage, "storage operation failed", nil)

	// External Service Errors
	ErrEmbeddingFailed        = NewDomainError(ErrorTypeExternal, "embedding provider failed", nil)
	ErrEntityExtractionFailed = NewDomainError(ErrorTypeExternal, "entity extraction failed", nil)

	// Internal Errors
	ErrInternal = NewDomainError(ErrorTypeInternal, "internal server error", nil)
)

// Wrap returns a copy of a sentinel carrying the underlying cause.
func Wrap(sentinel *DomainError, err error) *DomainError {
	return NewDomainError(sentinel.Type, sentinel.Message, err)
}

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsStorageError checks if an error is a transient storage failure
func IsStorageError(err error) bool {
	return GetErrorType(err) == ErrorTypeStorage
}

// IsExternalError checks if an error is an external service failure
func IsExternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeExternal
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

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapStorage wraps a driver error as a storage failure
func WrapStorage(message string, err error) error {
	return NewDomainError(ErrorTypeStorage, message, err)
}

// WrapExternal wraps an error as an external service failure
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// Validation returns a validation error with a formatted message
func Validation(format string, args ...interface{}) *DomainError {
	return NewDomainError(ErrorTypeValidation, fmt.Sprintf(format, args...), nil)
}

// FromFilterError maps a filter compilation failure to a validation error.
// It returns nil when err did not come from the filter compiler.
func FromFilterError(err error) *DomainError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, filter.ErrUnknownField):
		return Wrap(ErrUnknownColumn, err)
	case errors.Is(err, filter.ErrUnsupportedValue),
		errors.Is(err, filter.ErrKindMismatch),
		errors.Is(err, filter.ErrEmptyRange),
		errors.Is(err, filter.ErrEmptySet):
		return Wrap(ErrUnsupportedFilter, err)
	}
	return nil
}
