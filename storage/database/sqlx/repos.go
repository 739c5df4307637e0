// Package sqlxrepos implements the core repositories against PostgreSQL.
// Multi-table writes run in one database transaction; the schema's
// uniqueness and check constraints are the last line of defense against
// concurrent writers.
package sqlxrepos

import (
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/moflotas/ipts-backend/core"
)

const uniqueViolation = "23505"

// translate maps driver errors onto the domain sentinels.
func translate(err error, notFound error, conflict ...error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return core.NotFoundError(notFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && len(conflict) > 0 {
		return core.ConflictError(conflict[0])
	}
	return err
}
