package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned on a unique or primary key violation.
	ErrConflict = errors.New("already exists")
	// ErrInvalidReference is returned when a foreign key points at a missing row.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrConstraint is returned when a row violates a check or not-null constraint.
	ErrConstraint = errors.New("constraint violation")
)

// ValidationError reports input the store refuses before touching the database.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, a ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, a...)}
}

// Postgres SQLSTATE codes of the integrity constraint violation class.
const (
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
)

// classify maps driver errors onto the store sentinels, keeping the driver
// error in the chain. Errors it does not recognize are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return wrapSentinel(ErrConflict, pgErr.Detail, err)
		case pgForeignKeyViolation:
			return wrapSentinel(ErrInvalidReference, pgErr.Detail, err)
		case pgCheckViolation, pgNotNullViolation:
			return wrapSentinel(ErrConstraint, pgErr.ConstraintName, err)
		}
		return err
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.Code == sqlite3.ErrConstraint {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return wrapSentinel(ErrConflict, "", err)
		case sqlite3.ErrConstraintForeignKey:
			return wrapSentinel(ErrInvalidReference, "", err)
		case sqlite3.ErrConstraintCheck, sqlite3.ErrConstraintNotNull:
			return wrapSentinel(ErrConstraint, "", err)
		}
	}
	return err
}

func wrapSentinel(sentinel error, detail string, cause error) error {
	if detail == "" {
		return fmt.Errorf("%w: %w", sentinel, cause)
	}
	return fmt.Errorf("%w: %s: %w", sentinel, detail, cause)
}
