package aggregates

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	domainagg "github.com/yungbote/atlas-ingest/internal/domain/aggregates"
)

// Postgres SQLSTATEs the ingestion transaction can raise.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgQueryCanceled        = "57014"
)

// MapError converts a failed ingestion transaction into a *domainagg.Error.
//
// Unique violations come from a concurrent writer on the same message id or concept and are
// retryable: the redelivery observes the committed row. Check violations mean the file/entity
// link constraint rejected the write and are invariant violations.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var aggErr *domainagg.Error
	if errors.As(err, &aggErr) {
		return err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domainagg.Wrap(domainagg.CodeNotFound, op, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domainagg.Wrap(domainagg.CodeRetryable, op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable, pgQueryCanceled:
			return domainagg.Wrap(domainagg.CodeRetryable, op, err)
		case pgForeignKeyViolation:
			return domainagg.Wrap(domainagg.CodePreconditionFailed, op, err)
		case pgCheckViolation:
			return domainagg.Wrap(domainagg.CodeInvariantViolation, op, err)
		}
	}

	// Drivers that do not surface *pgconn.PgError still carry the text.
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"duplicate key", "deadlock", "could not serialize", "lock timeout", "connection reset"} {
		if strings.Contains(msg, marker) {
			return domainagg.Wrap(domainagg.CodeRetryable, op, err)
		}
	}
	return domainagg.Wrap(domainagg.CodeInternal, op, err)
}
