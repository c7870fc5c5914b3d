package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/SirClappington/cronos/internal/domain"
)

// envelope is the response shape of the worker endpoint and of every API error.
type envelope struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeEnvelopeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

func statusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidJob):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrLockHeld), errors.Is(err, domain.ErrJobClaimed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
