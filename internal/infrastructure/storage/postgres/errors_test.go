package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"stockledger/internal/core/apperror"
)

func TestTranslateError(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{sqlStateSerializationFailure, apperror.CodeConcurrentModification},
		{sqlStateDeadlockDetected, apperror.CodeConcurrentModification},
		{sqlStateLockNotAvailable, apperror.CodeConcurrentModification},
		{sqlStateUniqueViolation, apperror.CodeDuplicate},
		{sqlStateCheckViolation, apperror.CodeValidation},
		{sqlStateRaiseException, apperror.CodeConflict},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := fmt.Errorf("exec: %w", &pgconn.PgError{Code: tt.code, TableName: "inv_batches"})
			got := TranslateError(err)
			assert.True(t, apperror.Is(got, tt.want), "got %v", got)

			var pgErr *pgconn.PgError
			assert.True(t, errors.As(got, &pgErr), "cause is kept")
		})
	}
}

func TestTranslateError_PassThrough(t *testing.T) {
	assert.NoError(t, TranslateError(nil))

	appErr := apperror.NewNotFound("batch", "x")
	assert.Same(t, appErr, TranslateError(appErr))

	plain := errors.New("boom")
	assert.Same(t, plain, TranslateError(plain))

	other := &pgconn.PgError{Code: "42P01"}
	assert.Same(t, other, TranslateError(other))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(pgx.ErrNoRows))
	assert.True(t, isNotFound(fmt.Errorf("get: %w", pgx.ErrNoRows)))
	assert.False(t, isNotFound(errors.New("boom")))
}
