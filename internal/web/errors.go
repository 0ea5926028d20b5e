package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rpattn/importflow/internal/domain"
)

// errorResponse is the JSON body for failed requests.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondError maps the domain error taxonomy onto HTTP status codes.
// Anything unrecognized is treated as fatal and logged.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := "internal"

	switch {
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrOutOfRange):
		status, code = http.StatusBadRequest, "out_of_range"
	case errors.Is(err, domain.ErrBadUpload):
		status, code = http.StatusBadRequest, "bad_upload"
	case errors.Is(err, domain.ErrPreconditionFailed):
		status, code = http.StatusBadRequest, "precondition_failed"
	case errors.Is(err, domain.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	}

	if status == http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
