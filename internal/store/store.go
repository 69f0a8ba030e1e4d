package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/questforge/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrNotClaimed is returned by a finalize write when no running row is held by
// the given claim token.
var ErrNotClaimed = errors.New("job not claimed by this worker")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)

	// ClaimJob atomically moves a queued job to running. It returns (nil, nil)
	// when the job is missing or not queued.
	ClaimJob(ctx context.Context, id uuid.UUID, lockedBy string, leaseUntil *time.Time) (*models.Job, error)

	CompleteJob(ctx context.Context, id uuid.UUID, lockedBy string, result json.RawMessage) error
	RequeueJob(ctx context.Context, id uuid.UUID, lockedBy string, attempts int, errMsg string) error
	FailJob(ctx context.Context, id uuid.UUID, lockedBy string, attempts int, errMsg string) error

	CancelJob(ctx context.Context, id uuid.UUID) error
	ListExpiredLeases(ctx context.Context, now time.Time, limit int) ([]*models.Job, error)
}
