package storage

import "errors"

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUserExists     = errors.New("user already exists")
	ErrClientNotFound = errors.New("client not found")
	ErrEmailExists    = errors.New("client email already exists")
	ErrPhoneExists    = errors.New("client phone already exists")

	// ErrConstraintViolation is returned when a batch write trips a unique
	// index; it is wrapped with the name of the violated constraint.
	ErrConstraintViolation = errors.New("unique constraint violation")
)
