package base

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
)

const uniqueViolation = "23505"

// SQLSTATE codes worth a retry.
var transientCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"53300": true, // too_many_connections
	"57P01": true, // admin_shutdown
	"08000": true, // connection_exception
	"08003": true, // connection_does_not_exist
	"08006": true, // connection_failure
}

// Classify tags timeouts and connection failures with model.ErrTransientStore.
func Classify(err error) error {
	if err == nil || errors.Is(err, model.ErrTransientStore) {
		return err
	}
	if IsTransient(err) {
		return fmt.Errorf("%w: %w", model.ErrTransientStore, err)
	}
	return err
}

// IsTransient reports whether err is a retryable store failure.
func IsTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientCodes[pgErr.Code]
	}
	return false
}

// IsUniqueViolation reports a unique_violation on the named constraint (any constraint when empty).
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
