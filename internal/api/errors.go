package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-syncsign/internal/bridges/syncsign"
	"github.com/nerrad567/gray-logic-syncsign/internal/fleet"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnavailable  = "unavailable"
	ErrCodeBadGateway   = "bad_gateway"
)

// Setup-flow error codes, as shown by a config form.
const (
	ErrCodeCannotConnect     = "cannot_connect"
	ErrCodeInvalidAuth       = "invalid_auth"
	ErrCodeUnknown           = "unknown"
	ErrCodeAlreadyConfigured = "already_configured"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// setupCode maps a setup failure to the code a config form shows next to
// the key field.
func setupCode(err error) string {
	switch {
	case errors.Is(err, syncsign.ErrAlreadyConfigured):
		return ErrCodeAlreadyConfigured
	case errors.Is(err, fleet.ErrInvalidAuth):
		return ErrCodeInvalidAuth
	case errors.Is(err, fleet.ErrCannotConnect):
		return ErrCodeCannotConnect
	case errors.Is(err, fleet.ErrUnknownSetup):
		return ErrCodeUnknown
	default:
		return ErrCodeInternal
	}
}

// writeSetupError writes the response for a failed validation or entry creation.
func writeSetupError(w http.ResponseWriter, err error) {
	switch code := setupCode(err); code {
	case ErrCodeAlreadyConfigured:
		writeError(w, http.StatusConflict, code, "account is already configured")
	case ErrCodeInvalidAuth:
		writeError(w, http.StatusBadRequest, code, "invalid API key")
	case ErrCodeCannotConnect:
		writeError(w, http.StatusBadGateway, code, "cannot reach the SyncSign service")
	case ErrCodeUnknown:
		writeError(w, http.StatusBadGateway, code, "unexpected error")
	default:
		writeInternalError(w, "failed to add entry")
	}
}

// writeDisplayError maps an update-display failure to a response.
func writeDisplayError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fleet.ErrUnknownAsset):
		writeNotFound(w, "entity not found")
	case errors.Is(err, fleet.ErrNotDisplay):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "entity is not a display")
	case errors.Is(err, fleet.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "integration not ready")
	default:
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, "display update failed")
	}
}
