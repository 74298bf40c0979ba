package entity

import "errors"

var (
	// ErrEntityNotFound is returned when an entity ID does not exist.
	ErrEntityNotFound = errors.New("entity: not found")

	// ErrInvalidEntity is returned when required fields are missing.
	ErrInvalidEntity = errors.New("entity: invalid")
)
