package repository

import (
	"errors"

	"github.com/lib/pq"
)

const uniqueViolationCode = "23505"

// ErrNoRowUpdated reports that a status-guarded UPDATE matched no row: the
// row's status changed between the caller's read and the write. Services
// surface it as a conflict.
var ErrNoRowUpdated = errors.New("no row matched the expected status")

// IsUniqueViolation reports whether the error is a PostgreSQL unique
// constraint violation. Services rely on this to turn storage-level races
// (duplicate enrollments, colliding certificate identifiers) into domain
// conflicts or retries.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolationCode
	}
	return false
}
