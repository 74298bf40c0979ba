package fleet

import (
	"errors"
	"fmt"
	"strings"
)

// Remote call outcomes. Every client error wraps exactly one of these.
var (
	// ErrUnauthorized is returned when the key is rejected or the API
	// answers with an error payload.
	ErrUnauthorized = errors.New("fleet: unauthorized")

	// ErrNotFound is returned when the requested hub or node does not exist.
	ErrNotFound = errors.New("fleet: not found")

	// ErrTransport is returned when the API could not be reached.
	ErrTransport = errors.New("fleet: transport failure")

	// ErrMalformedResponse is returned when a response cannot be decoded
	// or lacks a required field.
	ErrMalformedResponse = errors.New("fleet: malformed response")
)

// Setup, polling and dispatch outcomes.
var (
	ErrCannotConnect  = errors.New("fleet: cannot connect")
	ErrInvalidAuth    = errors.New("fleet: invalid authentication")
	ErrUnknownSetup   = errors.New("fleet: unexpected setup failure")
	ErrNotReady       = errors.New("fleet: integration not ready")
	ErrStalePoll      = errors.New("fleet: connectivity poll failed")
	ErrDispatchFailed = errors.New("fleet: display update failed")
)

// Local errors.
var (
	ErrSessionReleased = errors.New("fleet: session released")
	ErrPoolClosed      = errors.New("fleet: worker pool closed")
	ErrInvalidState    = errors.New("fleet: invalid lifecycle state")
	ErrUnknownAsset    = errors.New("fleet: unknown asset")
	ErrNotDisplay      = errors.New("fleet: asset is not a display node")
	ErrMissingTarget   = errors.New("fleet: render target is empty")
	ErrMissingAPIKey   = errors.New("fleet: api key is required")
)

// Setup-flow error codes shown to the user.
const (
	CodeCannotConnect = "cannot_connect"
	CodeInvalidAuth   = "invalid_auth"
	CodeUnknown       = "unknown"
)

// APIError describes a failed remote call.
type APIError struct {
	Kind       error  // one of ErrUnauthorized, ErrNotFound, ErrTransport, ErrMalformedResponse
	Op         string // e.g. "GET /nodes/{id}"
	StatusCode int    // HTTP status, 0 when no response arrived
	Code       int    // envelope code, 0 when absent
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	b.WriteString(": ")
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Code != 0 {
		fmt.Fprintf(&b, ": code %d", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ErrorCode maps an error from Validate to the setup-flow code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCannotConnect):
		return CodeCannotConnect
	case errors.Is(err, ErrInvalidAuth):
		return CodeInvalidAuth
	default:
		return CodeUnknown
	}
}
