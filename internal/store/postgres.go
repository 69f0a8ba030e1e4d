package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/questforge/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const jobColumns = `id, owner_id, session_ref, chapter_ref, adventure_ref, quest_ref, job_type, payload,
	status, priority, attempts, max_attempts, locked_at, locked_by, lease_until, started_at, finished_at,
	result, error_message, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.OwnerID, &j.SessionRef, &j.ChapterRef, &j.AdventureRef, &j.QuestRef,
		&j.JobType, &j.Payload, &j.Status, &j.Priority, &j.Attempts, &j.MaxAttempts,
		&j.LockedAt, &j.LockedBy, &j.LeaseUntil, &j.StartedAt, &j.FinishedAt,
		&j.Result, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// --- Producer side ---

// CreateJob inserts a new job. The row always starts queued with zero attempts,
// whatever the caller set on the model.
func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	now := time.Now().UTC()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = job.CreatedAt
	job.Status = models.JobStatusQueued
	job.Attempts = 0
	if len(job.Payload) == 0 {
		job.Payload = json.RawMessage(`{}`)
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, owner_id, session_ref, chapter_ref, adventure_ref, quest_ref, job_type, payload,
		   status, priority, attempts, max_attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		job.ID, job.OwnerID, job.SessionRef, job.ChapterRef, job.AdventureRef, job.QuestRef,
		job.JobType, job.Payload, job.Status, job.Priority, job.Attempts, job.MaxAttempts,
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// --- Claim ---

// ClaimJob is a single conditional UPDATE, so at most one caller can move a
// given queued row to running no matter how many race for it.
func (s *PostgresStore) ClaimJob(ctx context.Context, id uuid.UUID, lockedBy string, leaseUntil *time.Time) (*models.Job, error) {
	now := time.Now().UTC()
	j, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE jobs
		 SET status = 'running', locked_at = $2, locked_by = $3, lease_until = $4,
		     started_at = $2, updated_at = $2
		 WHERE id = $1 AND status = 'queued'
		 RETURNING `+jobColumns,
		id, now, lockedBy, leaseUntil))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return j, nil
}

// --- Finalize ---

func (s *PostgresStore) CompleteJob(ctx context.Context, id uuid.UUID, lockedBy string, result json.RawMessage) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs
		 SET status = 'done', result = $3, error_message = NULL, finished_at = $4, updated_at = $4,
		     locked_at = NULL, locked_by = NULL, lease_until = NULL
		 WHERE id = $1 AND status = 'running' AND locked_by = $2`,
		id, lockedBy, result, now)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotClaimed
	}
	return nil
}

func (s *PostgresStore) RequeueJob(ctx context.Context, id uuid.UUID, lockedBy string, attempts int, errMsg string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs
		 SET status = 'queued', attempts = $3, error_message = $4, updated_at = $5,
		     locked_at = NULL, locked_by = NULL, lease_until = NULL
		 WHERE id = $1 AND status = 'running' AND locked_by = $2`,
		id, lockedBy, attempts, errMsg, now)
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotClaimed
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, id uuid.UUID, lockedBy string, attempts int, errMsg string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs
		 SET status = 'error', attempts = $3, error_message = $4, finished_at = $5, updated_at = $5,
		     locked_at = NULL, locked_by = NULL, lease_until = NULL
		 WHERE id = $1 AND status = 'running' AND locked_by = $2`,
		id, lockedBy, attempts, errMsg, now)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotClaimed
	}
	return nil
}

// --- External actors and recovery ---

// CancelJob moves a queued job to cancelled. Running or finished jobs are left
// alone and reported as ErrNotFound.
func (s *PostgresStore) CancelJob(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'cancelled', finished_at = $2, updated_at = $2
		 WHERE id = $1 AND status = 'queued'`, id, now)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListExpiredLeases returns running jobs whose lease ended before now, oldest first.
func (s *PostgresStore) ListExpiredLeases(ctx context.Context, now time.Time, limit int) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE status = 'running' AND lease_until IS NOT NULL AND lease_until < $1
		 ORDER BY lease_until ASC LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired leases: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
