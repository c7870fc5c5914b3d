package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SirClappington/cronos/internal/domain"
)

// handleWorker runs one dispatch. The job runs to completion even if the
// caller goes away.
func (s Server) handleWorker(w http.ResponseWriter, r *http.Request) {
	res, err := s.Dispatcher.Dispatch(context.WithoutCancel(r.Context()))
	if err != nil {
		s.Log.Error("job worker invocation failed", zap.Error(err))
		writeEnvelopeError(w, statusFromError(err), err.Error())
		return
	}
	if res.Job == nil {
		writeJSON(w, http.StatusOK, envelope{Success: true, Message: "No pending jobs"})
		return
	}

	j := res.Job
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		JobID:   j.ID,
		Message: fmt.Sprintf("Job %s %s: %d/%d processed, %d succeeded, %d failed, %d skipped",
			j.ID, j.Status, j.Processed, j.Total, j.Success, j.Errors, j.Skipped),
	})
}

type createJobRequest struct {
	UserID    string           `json:"user_id"`
	IsPremium bool             `json:"is_premium"`
	Priority  int              `json:"priority"`
	Companies []domain.Company `json:"companies"`
}

func (s Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelopeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeEnvelopeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	for i, c := range req.Companies {
		if c.Siren == "" {
			writeEnvelopeError(w, http.StatusBadRequest, fmt.Sprintf("companies[%d]: siren is required", i))
			return
		}
	}

	j := domain.NewJob(uuid.NewString(), req.UserID, req.IsPremium, req.Priority, req.Companies, s.Now())
	if err := s.Jobs.InsertJob(r.Context(), j); err != nil {
		s.Log.Error("enqueue job", zap.Error(err))
		writeEnvelopeError(w, statusFromError(err), "could not enqueue job")
		return
	}
	if s.Waker != nil {
		if err := s.Waker.Wake(r.Context(), j.ID); err != nil {
			s.Log.Warn("wake scheduler", zap.String("job_id", j.ID), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusCreated, j)
}

func (s Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.Jobs.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		status := statusFromError(err)
		if status == http.StatusInternalServerError {
			s.Log.Error("get job", zap.Error(err))
		}
		writeEnvelopeError(w, status, http.StatusText(status))
		return
	}
	writeJSON(w, http.StatusOK, j)
}
