package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-syncsign/internal/audit"
	"github.com/nerrad567/gray-logic-syncsign/internal/configentry"
	"github.com/nerrad567/gray-logic-syncsign/internal/fleet"
)

// entryRequest is the body of POST /entries and POST /entries/validate.
type entryRequest struct {
	APIKey string `json:"api_key"`
}

// entryView is a config entry with its runtime state. The API key is
// never returned.
type entryView struct {
	configentry.Entry
	State  string `json:"state"`
	Loaded bool   `json:"loaded"`
}

func (s *Server) viewEntry(e configentry.Entry) entryView {
	st, loaded := s.bridge.EntryState(e.ID)
	return entryView{Entry: e, State: st.String(), Loaded: loaded}
}

func decodeEntryRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return "", false
	}
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "api_key is required")
		return "", false
	}
	return key, true
}

// handleListEntries returns every stored entry.
func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	list, err := s.entries.List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list entries")
		return
	}
	views := make([]entryView, 0, len(list))
	for _, e := range list {
		views = append(views, s.viewEntry(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": views, "count": len(views)})
}

// handleGetEntry returns one entry.
func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	e, err := s.entries.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, configentry.ErrEntryNotFound) {
			writeNotFound(w, "entry not found")
			return
		}
		writeInternalError(w, "failed to get entry")
		return
	}
	writeJSON(w, http.StatusOK, s.viewEntry(*e))
}

// handleValidateEntry checks an API key without storing it. This is the
// first step of the setup flow.
func (s *Server) handleValidateEntry(w http.ResponseWriter, r *http.Request) {
	key, ok := decodeEntryRequest(w, r)
	if !ok {
		return
	}
	id, err := s.bridge.ValidateCredentials(r.Context(), key)
	if err != nil {
		s.logger.Info("credential validation failed", "code", fleet.ErrorCode(err))
		writeSetupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"title": id.Title,
		"email": id.Email,
	})
}

// handleCreateEntry validates and stores a new entry, then sets it up.
func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	key, ok := decodeEntryRequest(w, r)
	if !ok {
		return
	}
	e, err := s.bridge.AddEntry(r.Context(), key)
	if err != nil {
		s.logger.Info("entry creation failed", "error", err)
		s.auditLog(r, audit.ActionEntryAdd, audit.TargetEntry, "", err,
			map[string]any{"code": setupCode(err)})
		writeSetupError(w, err)
		return
	}
	s.auditLog(r, audit.ActionEntryAdd, audit.TargetEntry, e.ID, nil,
		map[string]any{"title": e.Title})
	writeJSON(w, http.StatusCreated, s.viewEntry(*e))
}

// handleDeleteEntry unloads and deletes an entry.
func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.bridge.RemoveEntry(r.Context(), id); err != nil {
		if errors.Is(err, configentry.ErrEntryNotFound) {
			writeNotFound(w, "entry not found")
			return
		}
		s.auditLog(r, audit.ActionEntryRemove, audit.TargetEntry, id, err, nil)
		writeInternalError(w, "failed to remove entry")
		return
	}
	s.auditLog(r, audit.ActionEntryRemove, audit.TargetEntry, id, nil, nil)
	w.WriteHeader(http.StatusNoContent)
}
