package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-syncsign/internal/audit"
)

// auditLog enqueues a record for asynchronous write (best-effort). A nil
// recorder means auditing is off.
func (s *Server) auditLog(r *http.Request, action, targetType, targetID string, err error, details map[string]any) {
	if s.recorder == nil {
		return
	}
	rec := audit.Record{
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Source:     audit.SourceAPI,
		OK:         err == nil,
		Details:    details,
	}
	if claims := claimsFromContext(r.Context()); claims != nil {
		rec.Actor = claims.Subject
	}
	if err != nil {
		if rec.Details == nil {
			rec.Details = map[string]any{}
		}
		rec.Details["error"] = err.Error()
	}
	s.recorder.Record(rec)
}

// handleListAuditLogs returns audit records, newest first.
//
// Query parameters:
//   - action: entry.add, entry.remove or display.update
//   - target_type: entry or entity
//   - target_id: one entry or entity id
//   - actor: token subject
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		TargetType: q.Get("target_type"),
		TargetID:   q.Get("target_id"),
		Actor:      q.Get("actor"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
