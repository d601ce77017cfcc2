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
	domainErr := NewDomainError(ErrorTypeStorage, "query failed", baseErr)

	assert.Equal(t, ErrorTypeStorage, domainErr.Type)
	assert.Equal(t, "query failed", domainErr.Message)
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
			name: "error with wrapped error",
			err: &DomainError{
				Type:    ErrorTypeStorage,
				Message: "hybrid search failed",
				Err:     errors.New("connection refused"),
			},
			wantMsg: "storage: hybrid search failed (connection refused)",
		},
		{
			name: "error without wrapped error",
			err: &DomainError{
				Type:    ErrorTypeValidation,
				Message: "invalid input",
			},
			wantMsg: "validation: invalid input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeInternal, "internal error", baseErr)

	assert.Equal(t, baseErr, errors.Unwrap(domainErr))
}

func TestDomainError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{
			name:   "wrapped sentinel matches",
			err:    Wrap(ErrInvalidAlpha, nil),
			target: ErrInvalidAlpha,
			want:   true,
		},
		{
			name:   "same type different sentinel",
			err:    Wrap(ErrInvalidTopK, nil),
			target: ErrInvalidAlpha,
			want:   false,
		},
		{
			name:   "different error type",
			err:    NewDomainError(ErrorTypeValidation, "validation", nil),
			target: ErrStorageFailure,
			want:   false,
		},
		{
			name:   "type-only target matches any message",
			err:    WrapStorage("inventory search failed", errors.New("timeout")),
			target: &DomainError{Type: ErrorTypeStorage},
			want:   true,
		},
		{
			name:   "wrapped with fmt.Errorf",
			err:    fmt.Errorf("context: %w", Wrap(ErrEmbeddingFailed, errors.New("503"))),
			target: ErrEmbeddingFailed,
			want:   true,
		},
		{
			name:   "non-domain error",
			err:    errors.New("plain"),
			target: ErrInternal,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestDomainError_WithDetail(t *testing.T) {
	err := Wrap(ErrUnknownColumn, nil).
		WithDetail("column", "secret").
		WithDetail("allowed", 44)

	assert.Equal(t, "secret", err.Details["column"])
	assert.Equal(t, 44, err.Details["allowed"])
	assert.Empty(t, ErrUnknownColumn.Details, "sentinel must stay untouched")
}

func TestErrorTypeHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", ErrCollectionNotFound, IsNotFoundError},
		{"validation", Validation("bad field %q", "x"), IsValidationError},
		{"storage", WrapStorage("similarity search failed", errors.New("io")), IsStorageError},
		{"external", WrapExternal("embed", errors.New("503")), IsExternalError},
		{"internal", WrapInternal("boom", nil), IsInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.True(t, tt.check(fmt.Errorf("wrapped: %w", tt.err)))
			assert.False(t, tt.check(errors.New("plain")))
		})
	}
}

func TestGetErrorTypeAndDetails(t *testing.T) {
	err := Wrap(ErrStorageFailure, errors.New("x")).WithDetail("path", "hybrid")

	assert.Equal(t, ErrorTypeStorage, GetErrorType(err))
	require.NotNil(t, GetErrorDetails(err))
	assert.Equal(t, "hybrid", GetErrorDetails(err)["path"])

	assert.Equal(t, ErrorType(""), GetErrorType(errors.New("plain")))
	assert.Nil(t, GetErrorDetails(errors.New("plain")))
}
