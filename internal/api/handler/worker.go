package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/questforge/internal/api/response"
	"github.com/kiranshivaraju/questforge/internal/worker"
)

// Runner executes one pushed job invocation.
type Runner interface {
	Run(ctx context.Context, req worker.RunRequest) (*worker.Outcome, error)
}

// Sweeper recovers jobs whose claim lease expired.
type Sweeper interface {
	Sweep(ctx context.Context) (*worker.SweepResult, error)
}

// NewRunHandler returns an http.HandlerFunc for POST /api/v1/worker/run.
// Handled outcomes are written without the data envelope so the pushing
// scheduler sees the status code and body it expects.
func NewRunHandler(svc Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req worker.RunRequest
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		out, err := svc.Run(r.Context(), req)
		if err != nil {
			switch {
			case errors.Is(err, worker.ErrUnauthorized):
				response.Error(w, http.StatusForbidden, "FORBIDDEN", "Invalid worker secret", nil)
			case errors.Is(err, worker.ErrBadRequest):
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			default:
				slog.ErrorContext(r.Context(), "worker run failed", "job_id", req.JobID, "error", err)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Raw(w, out.StatusCode, out.Body())
	}
}

// NewSweepHandler returns an http.HandlerFunc for POST /api/v1/worker/sweep.
func NewSweepHandler(svc Sweeper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Sweep(r.Context())
		if err != nil {
			slog.ErrorContext(r.Context(), "lease sweep failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		response.JSON(w, res)
	}
}
