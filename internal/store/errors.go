package store

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a tip id is inserted twice.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrStatusConflict is returned when a status update targets a tip
	// that is no longer pending.
	ErrStatusConflict = errors.New("tip status already final")

	// ErrInvalidInput is returned when a record is missing its key or
	// carries an invalid field.
	ErrInvalidInput = errors.New("invalid input")
)
