package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rpattn/importflow/internal/auth"
	"github.com/rpattn/importflow/internal/domain"
	"github.com/rpattn/importflow/internal/export"
	"github.com/rpattn/importflow/internal/recovery"
)

const maxUploadBytes = 32 << 20

func ownerID(r *http.Request) string {
	if owner, ok := auth.OwnerIDFromContext(r.Context()); ok {
		return owner
	}
	return auth.AnonymousOwner
}

func sessionID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid session id %q: %w", raw, domain.ErrNotFound)
	}
	return id, nil
}

type createSessionRequest struct {
	Kind string `json:"kind,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "bad_request"})
			return
		}
	}
	sess, err := s.orchestrator.CreateSession(r.Context(), ownerID(r), domain.ImportKind(req.Kind))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"sessionId": sess.ID,
		"state":     sess.State,
		"revision":  sess.Revision,
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid form data: %v", err), Code: "bad_request"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("file required: %v", err), Code: "bad_request"})
		return
	}
	defer file.Close()

	result, err := s.orchestrator.Analyze(r.Context(), id, header.Filename, file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	sess, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	errorCount, warningCount := domain.CountBySeverity(sess.Errors)
	remaining := sess.UnresolvedErrors("")
	if remaining == nil {
		remaining = []domain.ValidationError{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId":       sess.ID,
		"state":           sess.State,
		"revision":        sess.Revision,
		"totalErrors":     errorCount + warningCount,
		"remainingErrors": remaining,
		"fixedCount":      sess.FixedCount,
	})
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	unresolved, err := s.recovery.SuggestFixes(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	type suggestion struct {
		Type       domain.Rule      `json:"type"`
		Row        int              `json:"row"`
		Field      string           `json:"field"`
		Action     domain.FixAction `json:"action,omitempty"`
		Value      string           `json:"value,omitempty"`
		Confidence float64          `json:"confidence,omitempty"`
	}
	suggestions := make([]suggestion, 0, len(unresolved))
	for _, ve := range unresolved {
		item := suggestion{Type: ve.Rule, Row: ve.Row, Field: ve.Field}
		if ve.Fix != nil {
			item.Action = ve.Fix.Action
			item.Value = ve.Fix.Value
			item.Confidence = ve.Fix.Confidence
		}
		suggestions = append(suggestions, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (s *Server) handleFixSingle(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var req recovery.FixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "bad_request"})
		return
	}
	updated, err := s.recovery.FixSingle(r.Context(), id, req.Row, req.Field, req.Value)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"record": updated})
}

func (s *Server) handleFixBulk(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var req struct {
		Fixes []recovery.FixRequest `json:"fixes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "bad_request"})
		return
	}
	result, err := s.recovery.FixBulk(r.Context(), id, req.Fixes)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleApplyAutoFixes(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var req struct {
		MinConfidence float64 `json:"minConfidence,omitempty"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "bad_request"})
			return
		}
	}
	applied, err := s.recovery.ApplyAutoFixes(r.Context(), id, req.MinConfidence)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applied": applied})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	sess, err := s.orchestrator.Confirm(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sess.ID,
		"state":     sess.State,
		"revision":  sess.Revision,
	})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	result, err := s.orchestrator.Execute(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	sess, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.FileName(sess)))
	if err := export.WriteErrorReport(w, sess, format); err != nil {
		s.log.WithError(err).WithField("session", id).Error("report generation failed")
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
