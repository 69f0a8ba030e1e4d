// Package worker drives one job through claim, dispatch and its recorded
// outcome for each push the scheduler bridge delivers.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/questforge/internal/cache"
	"github.com/kiranshivaraju/questforge/internal/dispatch"
	"github.com/kiranshivaraju/questforge/internal/execctx"
	"github.com/kiranshivaraju/questforge/internal/failure"
	"github.com/kiranshivaraju/questforge/internal/retry"
	"github.com/kiranshivaraju/questforge/internal/scheduler"
	"github.com/kiranshivaraju/questforge/internal/store"
	"github.com/kiranshivaraju/questforge/pkg/models"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
)

// RunPath is the route the scheduler bridge pushes to.
const RunPath = "/api/v1/worker/run"

const (
	maxErrorMessageBytes = 4000
	defaultStatusTTL     = 24 * time.Hour
)

// Dispatcher executes a claimed job. *dispatch.Registry satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *models.Job) (json.RawMessage, error)
}

// Options configures a Service.
type Options struct {
	WorkerID           string
	PublicURL          string
	Secret             *Secret
	Policy             retry.Policy
	LeaseDuration      time.Duration
	DefaultMaxAttempts int
	SweepBatch         int
	StatusTTL          time.Duration
}

// Service orchestrates job execution. It holds no per-job state, so one
// Service serves any number of concurrent invocations.
type Service struct {
	store      store.Store
	dispatcher Dispatcher
	publisher  scheduler.Publisher
	cache      cache.Cache
	opts       Options
	runURL     string
	now        func() time.Time
}

// NewService creates a Service. c may be nil, in which case no status cache is
// maintained.
func NewService(st store.Store, d Dispatcher, pub scheduler.Publisher, c cache.Cache, opts Options) *Service {
	if opts.Policy.Backoff == nil {
		opts.Policy = retry.NewPolicy(nil)
	}
	if opts.DefaultMaxAttempts < 1 {
		opts.DefaultMaxAttempts = 3
	}
	if opts.SweepBatch < 1 {
		opts.SweepBatch = 100
	}
	if opts.StatusTTL <= 0 {
		opts.StatusTTL = defaultStatusTTL
	}
	if opts.Secret == nil {
		opts.Secret = NewSecret("", nil)
	}
	return &Service{
		store:      st,
		dispatcher: d,
		publisher:  pub,
		cache:      c,
		opts:       opts,
		runURL:     strings.TrimRight(opts.PublicURL, "/") + RunPath,
		now:        time.Now,
	}
}

// RunRequest is the body of a worker push.
type RunRequest struct {
	JobID  string `json:"jobId"`
	Secret string `json:"workerSecret"`
}

// Authorize checks a supplied worker secret.
func (s *Service) Authorize(secret string) error {
	if !s.opts.Secret.Verify(secret) {
		return ErrUnauthorized
	}
	return nil
}

// Run executes the job named in req once. Handler failures are absorbed by the
// retry policy and reported through the Outcome; a returned error means the
// request was rejected (ErrUnauthorized, ErrBadRequest) or the store or bridge
// failed.
func (s *Service) Run(ctx context.Context, req RunRequest) (*Outcome, error) {
	if err := s.Authorize(req.Secret); err != nil {
		return nil, err
	}
	jobID := strings.TrimSpace(req.JobID)
	if jobID == "" {
		return nil, fmt.Errorf("%w: jobId is required", ErrBadRequest)
	}
	id, err := uuid.Parse(jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: jobId is not a valid UUID", ErrBadRequest)
	}

	token := s.opts.WorkerID + "/" + uuid.NewString()
	job, err := s.store.ClaimJob(ctx, id, token, s.leaseUntil())
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if job == nil {
		slog.InfoContext(ctx, "job not claimable, skipping", "job_id", id)
		return skipped(id), nil
	}

	return execctx.Run(ctx, jobFields(job), func(ctx context.Context) (*Outcome, error) {
		return s.execute(ctx, job, token)
	})
}

func (s *Service) execute(ctx context.Context, job *models.Job, token string) (*Outcome, error) {
	slog.InfoContext(ctx, "job claimed",
		"attempts", job.Attempts,
		"max_attempts", job.MaxAttempts,
		"locked_by", token,
	)
	s.setStatus(ctx, job.ID, models.JobStatusRunning)

	start := s.now()
	result, dispatchErr := s.dispatcher.Dispatch(ctx, job)
	if dispatchErr != nil {
		msg := errorMessage(dispatchErr)
		slog.WarnContext(ctx, "job attempt failed",
			"kind", dispatch.Kind(dispatchErr),
			"error_fingerprint", failure.Fingerprint(msg),
			"duration_ms", s.now().Sub(start).Milliseconds(),
			"error", dispatchErr,
		)
		return s.recordFailure(ctx, job, token, msg, retry.DedupKey)
	}

	if err := s.store.CompleteJob(ctx, job.ID, token, result); err != nil {
		if errors.Is(err, store.ErrNotClaimed) {
			return s.claimLost(ctx, job), nil
		}
		return nil, fmt.Errorf("complete job: %w", err)
	}
	s.setStatus(ctx, job.ID, models.JobStatusDone)
	slog.InfoContext(ctx, "job completed", "duration_ms", s.now().Sub(start).Milliseconds())
	return done(job.ID), nil
}

// recordFailure applies the retry policy to a failed attempt of a job held by
// token. keyFn names the retry push so redundant pushes collapse at the bridge.
func (s *Service) recordFailure(ctx context.Context, job *models.Job, token, msg string, keyFn func(string, int) string) (*Outcome, error) {
	d := s.opts.Policy.Decide(job.Attempts, job.MaxAttempts)

	if !d.Retry {
		if err := s.store.FailJob(ctx, job.ID, token, d.NextAttempts, msg); err != nil {
			if errors.Is(err, store.ErrNotClaimed) {
				return s.claimLost(ctx, job), nil
			}
			return nil, fmt.Errorf("fail job: %w", err)
		}
		s.setStatus(ctx, job.ID, models.JobStatusError)
		slog.ErrorContext(ctx, "job failed permanently",
			"attempts", d.NextAttempts,
			"error_fingerprint", failure.Fingerprint(msg),
			"error", msg,
		)
		return failed(job.ID, d.NextAttempts), nil
	}

	if err := s.store.RequeueJob(ctx, job.ID, token, d.NextAttempts, msg); err != nil {
		if errors.Is(err, store.ErrNotClaimed) {
			return s.claimLost(ctx, job), nil
		}
		return nil, fmt.Errorf("requeue job: %w", err)
	}
	s.setStatus(ctx, job.ID, models.JobStatusQueued)

	dedup := keyFn(job.ID.String(), d.NextAttempts)
	if err := s.push(ctx, job.ID, dedup, d.Delay); err != nil {
		return nil, fmt.Errorf("schedule retry: %w", err)
	}
	slog.InfoContext(ctx, "job requeued",
		"attempts", d.NextAttempts,
		"retry_in_seconds", retry.Seconds(d.Delay),
		"dedup_id", dedup,
	)
	return requeued(job.ID, d.NextAttempts, d.Delay), nil
}

// claimLost reports a finalize write that found the row no longer held by this
// invocation, which happens when a sweep recovered an expired lease.
func (s *Service) claimLost(ctx context.Context, job *models.Job) *Outcome {
	slog.WarnContext(ctx, "job claim lost before finalize, discarding outcome")
	return skipped(job.ID)
}

func (s *Service) push(ctx context.Context, id uuid.UUID, dedup string, delay time.Duration) error {
	body, err := json.Marshal(RunRequest{JobID: id.String(), Secret: s.opts.Secret.Value()})
	if err != nil {
		return fmt.Errorf("marshal push body: %w", err)
	}
	return s.publisher.Publish(ctx, scheduler.Message{
		URL:             s.runURL,
		DeduplicationID: dedup,
		Body:            body,
		Delay:           delay,
	})
}

func (s *Service) leaseUntil() *time.Time {
	if s.opts.LeaseDuration <= 0 {
		return nil
	}
	t := s.now().Add(s.opts.LeaseDuration).UTC()
	return &t
}

// setStatus mirrors a transition into the status cache. Failures are logged
// only; the store stays authoritative.
func (s *Service) setStatus(ctx context.Context, id uuid.UUID, status string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetJobStatus(ctx, id, status, s.opts.StatusTTL); err != nil {
		slog.WarnContext(ctx, "job status cache write failed", "status", status, "error", err)
	}
}

func jobFields(job *models.Job) execctx.Fields {
	owner, session, chapter, adventure, quest := job.Refs()
	return execctx.Fields{
		JobID:       job.ID.String(),
		JobType:     job.JobType,
		UserID:      owner,
		SessionID:   session,
		ChapterID:   chapter,
		AdventureID: adventure,
		QuestID:     quest,
	}
}

func errorMessage(err error) string {
	msg := err.Error()
	if len(msg) > maxErrorMessageBytes {
		msg = msg[:maxErrorMessageBytes]
	}
	return strings.ToValidUTF8(msg, "")
}
