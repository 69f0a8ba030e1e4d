package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/questforge/internal/execctx"
	"github.com/kiranshivaraju/questforge/internal/retry"
	"github.com/kiranshivaraju/questforge/pkg/models"
)

// NewJob is a producer's request to queue work.
type NewJob struct {
	JobType      string          `json:"job_type" validate:"required"`
	Payload      json.RawMessage `json:"payload"`
	Priority     int             `json:"priority" validate:"gte=0,lte=100"`
	MaxAttempts  int             `json:"max_attempts" validate:"gte=0,lte=20"`
	OwnerID      *string         `json:"owner_id"`
	SessionRef   *string         `json:"session_ref"`
	ChapterRef   *string         `json:"chapter_ref"`
	AdventureRef *string         `json:"adventure_ref"`
	QuestRef     *string         `json:"quest_ref"`
}

// Enqueue inserts a queued job and publishes its first run.
func (s *Service) Enqueue(ctx context.Context, nj NewJob) (*models.Job, error) {
	if !slices.Contains(models.JobTypes, nj.JobType) {
		return nil, fmt.Errorf("%w: unknown job_type %q", ErrBadRequest, nj.JobType)
	}
	if len(nj.Payload) > 0 && !json.Valid(nj.Payload) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", ErrBadRequest)
	}
	maxAttempts := nj.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = s.opts.DefaultMaxAttempts
	}

	job := &models.Job{
		ID:           uuid.New(),
		OwnerID:      nj.OwnerID,
		SessionRef:   nj.SessionRef,
		ChapterRef:   nj.ChapterRef,
		AdventureRef: nj.AdventureRef,
		QuestRef:     nj.QuestRef,
		JobType:      nj.JobType,
		Payload:      nj.Payload,
		Priority:     nj.Priority,
		MaxAttempts:  maxAttempts,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	execctx.Patch(ctx, jobFields(job))
	s.setStatus(ctx, job.ID, models.JobStatusQueued)

	if err := s.push(ctx, job.ID, retry.RunKey(job.ID.String()), 0); err != nil {
		return nil, fmt.Errorf("schedule first run: %w", err)
	}
	slog.InfoContext(ctx, "job enqueued", "max_attempts", maxAttempts)
	return job, nil
}

// SweepResult counts what one Sweep did.
type SweepResult struct {
	Expired  int `json:"expired"`
	Requeued int `json:"requeued"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// Sweep recovers running jobs whose lease has expired. Each one counts as a
// failed attempt and goes through the retry policy, so a job that keeps
// crashing its worker still converges to error.
func (s *Service) Sweep(ctx context.Context) (*SweepResult, error) {
	expired, err := s.store.ListExpiredLeases(ctx, s.now(), s.opts.SweepBatch)
	if err != nil {
		return nil, fmt.Errorf("list expired leases: %w", err)
	}

	res := &SweepResult{Expired: len(expired)}
	for _, job := range expired {
		if job.LockedBy == nil {
			res.Skipped++
			continue
		}
		out, err := execctx.Run(ctx, jobFields(job), func(ctx context.Context) (*Outcome, error) {
			slog.WarnContext(ctx, "job lease expired", "locked_by", *job.LockedBy, "lease_until", job.LeaseUntil)
			return s.recordFailure(ctx, job, *job.LockedBy, "lease expired", retry.LeaseKey)
		})
		if err != nil {
			return res, fmt.Errorf("recover job %s: %w", job.ID, err)
		}
		switch {
		case out.Skipped:
			res.Skipped++
		case out.Retried:
			res.Requeued++
		default:
			res.Failed++
		}
	}

	if res.Expired > 0 {
		slog.InfoContext(ctx, "lease sweep finished",
			"expired", res.Expired,
			"requeued", res.Requeued,
			"failed", res.Failed,
			"skipped", res.Skipped,
		)
	}
	return res, nil
}

// RunSweeper calls Sweep every interval until ctx is cancelled. Several
// servers may sweep at once: each finalize is fenced by the expired claim
// token, so only one of them records a given recovery.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				slog.ErrorContext(ctx, "lease sweep failed", "error", err)
			}
		}
	}
}

// Cancel moves a queued job to cancelled. It returns store.ErrNotFound when
// the job does not exist or is no longer queued.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	if err := s.store.CancelJob(ctx, id); err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	s.setStatus(ctx, id, models.JobStatusCancelled)
	slog.InfoContext(ctx, "job cancelled", "job_id", id)
	return nil
}

// Get returns the full job row.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return s.store.GetJob(ctx, id)
}

// Status returns a job's status, from the cache when it holds one.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (string, error) {
	if s.cache != nil {
		status, ok, err := s.cache.GetJobStatus(ctx, id)
		if err != nil {
			slog.WarnContext(ctx, "job status cache read failed", "job_id", id, "error", err)
		} else if ok {
			return status, nil
		}
	}

	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return "", err
	}
	s.setStatus(ctx, id, job.Status)
	return job.Status, nil
}
