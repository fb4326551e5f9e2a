package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrDuplicate is returned when an insert violates a unique index.
	ErrDuplicate = errors.New("duplicate key")
	// ErrSessionConsumed is returned when a rotation lost the race for its
	// predecessor: the presented session row was already removed or rotated.
	ErrSessionConsumed = errors.New("refresh session already consumed")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
