package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrNoRowsAffected indicates a guarded update matched no row.
	ErrNoRowsAffected = errors.New("repository: no rows affected")
	// ErrUniqueViolation indicates an insert hit a unique constraint.
	ErrUniqueViolation = errors.New("repository: unique violation")
)

const pgUniqueViolation = "23505"

// translateError maps driver errors of both supported drivers onto the
// repository sentinels and leaves everything else untouched.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
		return errors.Join(ErrUniqueViolation, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return errors.Join(ErrUniqueViolation, err)
	}

	return err
}
