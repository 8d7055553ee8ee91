package store

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail is returned when a unique email constraint is violated.
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrDuplicateUsername is returned when the unique username constraint is violated.
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrConflict is returned for any other unique violation.
	ErrConflict = errors.New("conflict")
	// ErrLeadCompleted is returned when a lead already holds a password.
	ErrLeadCompleted = errors.New("lead already completed")
)

const uniqueViolation = "23505"

// mapUniqueViolation turns a postgres unique violation into a store sentinel,
// leaving every other error untouched.
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case "users_email_key", "leads_email_key":
		return ErrDuplicateEmail
	case "users_username_key":
		return ErrDuplicateUsername
	default:
		return ErrConflict
	}
}
