package postgres

import (
	"errors"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"stockledger/internal/core/apperror"
)

// SQLSTATE codes the repositories react to.
const (
	sqlStateUniqueViolation      = "23505"
	sqlStateCheckViolation       = "23514"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
	sqlStateRaiseException       = "P0001"
)

// TranslateError maps driver errors to application errors. AppErrors and
// unknown errors pass through unchanged.
func TranslateError(err error) error {
	if err == nil || apperror.IsAppError(err) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateLockNotAvailable:
			return apperror.NewConcurrentModification(pgErr.TableName, nil).
				WithDetail("sqlstate", pgErr.Code).
				WithCause(err)
		case sqlStateUniqueViolation:
			return apperror.NewDuplicate(pgErr.TableName, pgErr.ConstraintName, "").WithCause(err)
		case sqlStateCheckViolation:
			return apperror.NewValidation("constraint violated").
				WithDetail("constraint", pgErr.ConstraintName).
				WithCause(err)
		case sqlStateRaiseException:
			return apperror.NewConflict(pgErr.Message).WithCause(err)
		}
	}
	return err
}

// isNotFound reports whether err means "no rows".
func isNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || pgxscan.NotFound(err)
}
