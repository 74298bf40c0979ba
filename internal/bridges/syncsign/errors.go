package syncsign

import "errors"

var (
	// ErrAlreadyConfigured is returned when an account's key is already stored.
	ErrAlreadyConfigured = errors.New("syncsign: already configured")

	// ErrEntryNotLoaded is returned when an entry has no integration.
	ErrEntryNotLoaded = errors.New("syncsign: entry not loaded")

	// ErrBridgeStopped is returned for commands that arrive after Stop.
	ErrBridgeStopped = errors.New("syncsign: bridge stopped")
)

// Ack error codes.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeNotDisplay        = "NOT_DISPLAY"
	ErrCodeNotReady          = "NOT_READY"
	ErrCodeDispatchFailed    = "DISPATCH_FAILED"
	ErrCodeTimeout           = "TIMEOUT"
)
