package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/questforge/internal/api/response"
	"github.com/kiranshivaraju/questforge/internal/store"
	"github.com/kiranshivaraju/questforge/internal/worker"
	"github.com/kiranshivaraju/questforge/pkg/models"
)

// JobService is what the job routes depend on.
type JobService interface {
	Enqueue(ctx context.Context, nj worker.NewJob) (*models.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	Status(ctx context.Context, id uuid.UUID) (string, error)
	Cancel(ctx context.Context, id uuid.UUID) error
}

type jobStatusResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status string    `json:"status"`
}

// NewCreateJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
func NewCreateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req worker.NewJob
		if !Bind(w, r, &req) {
			return
		}

		job, err := svc.Enqueue(r.Context(), req)
		if err != nil {
			if errors.Is(err, worker.ErrBadRequest) {
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
				return
			}
			internalError(w, r, "enqueue job failed", err)
			return
		}

		response.Accepted(w, jobStatusResponse{JobID: job.ID, Status: job.Status})
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		job, err := svc.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				notFound(w)
				return
			}
			internalError(w, r, "get job failed", err)
			return
		}
		response.JSON(w, job)
	}
}

// NewJobStatusHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}/status.
func NewJobStatusHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		status, err := svc.Status(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				notFound(w)
				return
			}
			internalError(w, r, "get job status failed", err)
			return
		}
		response.JSON(w, jobStatusResponse{JobID: id, Status: status})
	}
}

// NewCancelJobHandler returns an http.HandlerFunc for POST /api/v1/jobs/{jobID}/cancel.
// Only queued jobs can be cancelled.
func NewCancelJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		if err := svc.Cancel(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusConflict, "JOB_NOT_CANCELLABLE",
					"Job does not exist or is no longer queued", nil)
				return
			}
			internalError(w, r, "cancel job failed", err)
			return
		}
		response.JSON(w, jobStatusResponse{JobID: id, Status: models.JobStatusCancelled})
	}
}

func jobIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_JOB_ID", "jobID must be a UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func notFound(w http.ResponseWriter) {
	response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Job not found", nil)
}

func internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.ErrorContext(r.Context(), msg, "error", err)
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
}
