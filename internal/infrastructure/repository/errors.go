package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	domainerrors "github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
)

// IsForeignKeyViolation checks if the error is a foreign key constraint violation
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// IsDuplicateKeyViolation checks if the error is a unique constraint violation
func IsDuplicateKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// constraintName returns the violated constraint, if any
func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

// IsNotFound checks if the error indicates a record was not found
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// mapError converts driver failures into domain errors. notFound is
// returned for pgx.ErrNoRows when non-nil.
func mapError(err error, op string, notFound func() *domainerrors.AppError) error {
	if err == nil {
		return nil
	}
	var appErr *domainerrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if notFound != nil && errors.Is(err, pgx.ErrNoRows) {
		return notFound()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return domainerrors.NewInternalError(op).WithCause(err)
}
