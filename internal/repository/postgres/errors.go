package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Classifiers for the pgconn errors the repositories map onto domain
// sentinels. The schema leans on constraints for its invariants, so
// these fire in normal operation, not just on bugs: a duplicate
// (run_id, idx) in run_events means a second writer raced the run's
// log, and a duplicate (message_id, ord) in parts means a step was
// persisted twice.

// IsPgDuplicateError reports a unique or primary key violation
// (SQLSTATE 23505).
func IsPgDuplicateError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// IsPgNoRowsError reports that a single-row query matched nothing.
func IsPgNoRowsError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsPgForeignKeyError reports a foreign key violation (SQLSTATE 23503):
// a part for a missing message, a run or message for a missing chat, or
// an event for a missing run.
func IsPgForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
