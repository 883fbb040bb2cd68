package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/phrazzld/taskrelay/internal/store"
)

// PostgreSQL constraint error codes surfaced by the task store.
const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
	checkViolationCode      = "23514"
	notNullViolationCode    = "23502"
)

// mapError translates driver-level errors into the store package's sentinel
// errors so callers can match with errors.Is without importing pgconn.
// Errors that have no store-level meaning pass through unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrTaskNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			return fmt.Errorf(
				"%w: duplicate key (%s)",
				store.ErrInvalidEntity,
				pgErr.ConstraintName,
			)
		case foreignKeyViolationCode, checkViolationCode, notNullViolationCode:
			return fmt.Errorf(
				"%w: constraint violation (%s)",
				store.ErrInvalidEntity,
				pgErr.ConstraintName,
			)
		}
	}

	return err
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation, used to give duplicate task IDs a friendlier message.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
