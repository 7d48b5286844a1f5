package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kirinyoku/bustix/internal/repository"
)

// SQLSTATE codes the store reacts to.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
)

const seatRangeConstraint = "routes_available_seats_range"

func pgError(err error) (*pgconn.PgError, bool) {
	var pge *pgconn.PgError
	ok := errors.As(err, &pge)
	return pge, ok
}

// IsRetryable reports whether a transaction failed only because it lost a
// serialization race and may be run again.
func IsRetryable(err error) bool {
	pge, ok := pgError(err)
	if !ok {
		return false
	}
	return pge.Code == codeSerializationFailure || pge.Code == codeDeadlockDetected
}

func translateDBErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}

	pge, ok := pgError(err)
	if !ok {
		return err
	}

	switch pge.Code {
	case codeUniqueViolation:
		return repository.ErrConflict
	case codeForeignKeyViolation:
		// the referenced route or booking is gone
		return repository.ErrNotFound
	case codeCheckViolation:
		if pge.ConstraintName == seatRangeConstraint {
			return repository.ErrConflict
		}
	}

	return err
}
