package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns formatted string", func(t *testing.T) {
		err := New(ErrCodeNotFound, "Session not found")
		assert.Equal(t, "NOT_FOUND: Session not found", err.Error())
	})

	t.Run("Error with cause includes cause", func(t *testing.T) {
		cause := errors.New("database connection failed")
		err := Wrap(ErrCodeDatabase, "Database error", cause)
		assert.Contains(t, err.Error(), "DATABASE_ERROR")
		assert.Contains(t, err.Error(), "Database error")
		assert.Contains(t, err.Error(), "database connection failed")
	})

	t.Run("WithCause adds cause to error", func(t *testing.T) {
		cause := errors.New("original error")
		err := New(ErrCodeInternal, "Something went wrong").WithCause(cause)
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("WithDetails adds details to error", func(t *testing.T) {
		details := map[string]string{"slot": "2", "reason": "not converted"}
		err := New(ErrCodeNotReady, "Clip not ready").WithDetails(details)
		assert.Equal(t, details, err.Details)
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name        string
		constructor func() *AppError
		wantCode    ErrorCode
	}{
		{"NotFound", func() *AppError { return NotFound("Session") }, ErrCodeNotFound},
		{"ValidationError", func() *AppError { return ValidationError("bad") }, ErrCodeValidation},
		{"MissingRequired", func() *AppError { return MissingRequired("session_id") }, ErrCodeMissingRequired},
		{"InvalidState", func() *AppError { return InvalidState("already complete") }, ErrCodeInvalidState},
		{"NotReady", func() *AppError { return NotReady("clip 2 not converted") }, ErrCodeNotReady},
		{"ClipRejected", func() *AppError { return ClipRejected("too long") }, ErrCodeClipRejected},
		{"MediaTimeout", func() *AppError { return MediaTimeout("convert") }, ErrCodeMediaTimeout},
		{"Internal", func() *AppError { return Internal("boom") }, ErrCodeInternal},
		{"Database", func() *AppError { return Database(errors.New("down")) }, ErrCodeDatabase},
		{"Storage", func() *AppError { return Storage(errors.New("down")) }, ErrCodeStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.constructor()
			assert.Equal(t, tt.wantCode, err.Code)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestHelpers(t *testing.T) {
	t.Run("IsAppError detects AppError", func(t *testing.T) {
		assert.True(t, IsAppError(NotFound("Session")))
		assert.False(t, IsAppError(errors.New("plain")))
	})

	t.Run("AsAppError unwraps through fmt wrapping", func(t *testing.T) {
		inner := ClipRejected("too short")
		appErr, ok := AsAppError(inner)
		assert.True(t, ok)
		assert.Equal(t, ErrCodeClipRejected, appErr.Code)
	})

	t.Run("GetCode falls back to internal", func(t *testing.T) {
		assert.Equal(t, ErrCodeInternal, GetCode(errors.New("plain")))
		assert.Equal(t, ErrCodeNotFound, GetCode(NotFound("Session")))
	})
}
