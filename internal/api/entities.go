package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-syncsign/internal/audit"
	"github.com/nerrad567/gray-logic-syncsign/internal/entity"
)

// displayRequest is the body of POST /entities/{id}/display. Contents is
// passed to the vendor unchanged: a JSON string as its text, anything
// else as raw JSON.
type displayRequest struct {
	Contents json.RawMessage `json:"contents"`
}

// serviceRequest is the body of POST /services/update_display. EntityID
// accepts one id or a list.
type serviceRequest struct {
	EntityID entityIDs       `json:"entity_id"`
	Contents json.RawMessage `json:"contents"`
}

type entityIDs []string

func (ids *entityIDs) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*ids = entityIDs{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*ids = many
	return nil
}

// serviceResult is the per-entity outcome of a multi-target call.
type serviceResult struct {
	EntityID string `json:"entity_id"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
}

func contentsText(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(raw), true
}

// handleListEntities returns every entity.
//
// Query parameters:
//   - entry_id: only entities of this entry
//   - kind: hub or node
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	entryID := r.URL.Query().Get("entry_id")
	kind := entity.Kind(r.URL.Query().Get("kind"))

	all := s.bridge.Entities()
	out := make([]entity.Entity, 0, len(all))
	for _, e := range all {
		if entryID != "" && e.EntryID != entryID {
			continue
		}
		if kind != "" && e.Kind != kind {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, map[string]any{"entities": out, "count": len(out)})
}

// handleGetEntity returns one entity.
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	e, err := s.bridge.Entity(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w, "entity not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleEntityDisplay pushes contents to one display.
func (s *Server) handleEntityDisplay(w http.ResponseWriter, r *http.Request) {
	var req displayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	contents, ok := contentsText(req.Contents)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "contents is required")
		return
	}

	id := chi.URLParam(r, "id")
	err := s.bridge.UpdateDisplay(r.Context(), id, contents)
	s.auditLog(r, audit.ActionDisplayUpdate, audit.TargetEntity, id, err, nil)
	if err != nil {
		writeDisplayError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, serviceResult{EntityID: id, OK: true})
}

// handleUpdateDisplayService sends the same contents to every listed
// display. Each target is attempted once; one failure does not stop the
// others. The response is 200 when all succeeded and 207 otherwise.
func (s *Server) handleUpdateDisplayService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.EntityID) == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "entity_id is required")
		return
	}
	contents, ok := contentsText(req.Contents)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "contents is required")
		return
	}

	results := make([]serviceResult, 0, len(req.EntityID))
	failed := 0
	for _, id := range req.EntityID {
		id = strings.TrimSpace(id)
		res := serviceResult{EntityID: id, OK: true}
		err := s.bridge.UpdateDisplay(r.Context(), id, contents)
		s.auditLog(r, audit.ActionDisplayUpdate, audit.TargetEntity, id, err,
			map[string]any{"service": "update_display"})
		if err != nil {
			res.OK = false
			res.Error = err.Error()
			failed++
		}
		results = append(results, res)
	}

	status := http.StatusOK
	if failed > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, map[string]any{"results": results, "failed": failed})
}
