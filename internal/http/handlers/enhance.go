package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"server/internal/domain"
	"server/internal/jobs"

	"github.com/go-chi/chi/v5"
)

type enhanceRequest struct {
	References  []string `json:"references"`
	Instruction string   `json:"instruction"`
	Label       string   `json:"label"`
}

// EnhanceCreate accepts a batch of reference URLs, runs the whole pipeline
// synchronously and returns the completed job summary.
func (a *App) EnhanceCreate(w http.ResponseWriter, r *http.Request) {
	var req enhanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	summary, err := a.Coordinator.Run(r.Context(), jobs.Request{
		UserID:      a.currentUserID(r),
		References:  req.References,
		Instruction: req.Instruction,
		Label:       req.Label,
	})
	if err != nil {
		a.jobError(w, err)
		return
	}
	a.json(w, http.StatusOK, summary)
}

// EnhanceStatus reports the stored state of a job, including the archive
// link once the job completed.
func (a *App) EnhanceStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: job lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	if !ownsJob(a.currentUserID(r), job) {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}

	resp := map[string]any{
		"job_id":     job.ID,
		"status":     string(job.Status),
		"item_count": job.ItemCount,
		"cost":       job.Cost,
		"created_at": job.CreatedAt.Format(time.RFC3339),
		"updated_at": job.UpdatedAt.Format(time.RFC3339),
	}
	if job.Label != "" {
		resp["label"] = job.Label
	}
	if job.ErrorMessage != "" {
		resp["error_message"] = job.ErrorMessage
	}
	if job.ArchiveKey != nil {
		resp["archive_url"] = fmt.Sprintf("/v1/enhancements/%s/archive", job.ID)
	}
	a.json(w, http.StatusOK, resp)
}

// EnhanceArchive streams the stored ZIP for a completed job.
func (a *App) EnhanceArchive(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: job lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	if !ownsJob(a.currentUserID(r), job) {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if job.Status != domain.JobStatusCompleted || job.ArchiveKey == nil {
		a.error(w, http.StatusConflict, "not_ready", "job has no archive")
		return
	}

	data, err := a.Archives.Read(r.Context(), *job.ArchiveKey)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: archive read failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=enhancement-%s.zip", job.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// jobError maps pipeline failures onto the API error contract.
func (a *App) jobError(w http.ResponseWriter, err error) {
	var insufficient *domain.InsufficientCreditsError
	switch {
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.As(err, &insufficient):
		a.json(w, http.StatusPaymentRequired, map[string]any{
			"error":     "insufficient_credits",
			"message":   insufficient.Error(),
			"shortfall": insufficient.Shortfall,
			"balance":   insufficient.Balance,
		})
	case errors.Is(err, domain.ErrGeneration):
		a.error(w, http.StatusBadGateway, "generation_failed", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", err.Error())
	default:
		a.Logger.Error().Err(err).Msg("handlers: enhancement failed")
		a.error(w, http.StatusInternalServerError, "internal", "enhancement failed")
	}
}

// ownsJob hides other users' jobs. Anonymous jobs are only visible to
// anonymous callers since there is no identity to match against.
func ownsJob(userID *string, job *domain.Job) bool {
	if job.UserID == nil {
		return true
	}
	return userID != nil && *userID == *job.UserID
}
