package pgexec

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// uniqueViolation is the SQLSTATE of unique_violation.
const uniqueViolation = "23505"

// ErrUpsertRace is returned when an upsert's insert hit a unique violation
// and the retried update still matched no row.
var ErrUpsertRace = errors.New("upsert: insert conflicted and the retried update matched nothing")

// BatchError reports which statement of a batched insert failed. The
// statements before Index were applied; the rest were not run.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch statement %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// IsUniqueViolation reports whether err is a unique constraint violation
// from either supported driver.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}
