package services

import "errors"

// Kind classifies a domain error for transport mapping.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
	KindNotFound     Kind = "not_found"
	KindMismatch     Kind = "mismatch"
	KindInternal     Kind = "internal"
)

// Error is an expected, user-facing failure with a stable kind.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrAgeRestriction     = &Error{Kind: KindValidation, Message: "you must be at least 18 years old to register"}
	ErrUsernameTaken      = &Error{Kind: KindConflict, Message: "username already taken"}
	ErrEmailTaken         = &Error{Kind: KindConflict, Message: "email already registered"}
	ErrInvalidCredentials = &Error{Kind: KindUnauthorized, Message: "invalid credentials"}
	// ErrCredentialMissing is kept distinct for logging but reads the same as
	// ErrInvalidCredentials to the caller.
	ErrCredentialMissing = &Error{Kind: KindUnauthorized, Message: "invalid credentials"}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrUserNotFound      = &Error{Kind: KindNotFound, Message: "user not found"}
	ErrLeadNotFound      = &Error{Kind: KindNotFound, Message: "lead not found"}
	ErrEmailMismatch     = &Error{Kind: KindMismatch, Message: "email does not match lead record"}
	ErrAlreadyRegistered = &Error{Kind: KindConflict, Message: "registration already completed"}
)

// KindOf returns the kind of err, or KindInternal when err is not a domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
