package configentry

import "errors"

var (
	// ErrEntryNotFound is returned when an entry ID does not exist.
	ErrEntryNotFound = errors.New("configentry: not found")

	// ErrEntryExists is returned when the API key is already configured.
	ErrEntryExists = errors.New("configentry: already configured")

	// ErrInvalidEntry is returned when required fields are missing.
	ErrInvalidEntry = errors.New("configentry: invalid")
)
