package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/questforge/internal/scheduler"
	"github.com/kiranshivaraju/questforge/internal/store"
	"github.com/kiranshivaraju/questforge/pkg/models"
)

// memStore is an in-memory store.Store with the same conditional-update
// semantics as the Postgres implementation.
type memStore struct {
	mu     sync.Mutex
	jobs   map[uuid.UUID]*models.Job
	writes int
	err    error
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[uuid.UUID]*models.Job)}
}

func (m *memStore) put(job *models.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
}

func (m *memStore) get(id uuid.UUID) models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[id]
}

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *memStore) Ping(context.Context) error { return m.err }

func (m *memStore) CreateJob(_ context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.jobs[job.ID]; ok {
		return store.ErrDuplicateKey
	}
	m.writes++
	job.Status = models.JobStatusQueued
	job.Attempts = 0
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	j, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) ClaimJob(_ context.Context, id uuid.UUID, lockedBy string, leaseUntil *time.Time) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	j, ok := m.jobs[id]
	if !ok || j.Status != models.JobStatusQueued {
		return nil, nil
	}
	m.writes++
	now := time.Now()
	j.Status = models.JobStatusRunning
	j.LockedAt = &now
	j.LockedBy = &lockedBy
	j.LeaseUntil = leaseUntil
	j.StartedAt = &now
	cp := *j
	return &cp, nil
}

func (m *memStore) held(id uuid.UUID, lockedBy string) (*models.Job, error) {
	if m.err != nil {
		return nil, m.err
	}
	j, ok := m.jobs[id]
	if !ok || j.Status != models.JobStatusRunning || j.LockedBy == nil || *j.LockedBy != lockedBy {
		return nil, store.ErrNotClaimed
	}
	m.writes++
	j.LockedAt, j.LockedBy, j.LeaseUntil = nil, nil, nil
	return j, nil
}

func (m *memStore) CompleteJob(_ context.Context, id uuid.UUID, lockedBy string, result json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.held(id, lockedBy)
	if err != nil {
		return err
	}
	now := time.Now()
	j.Status = models.JobStatusDone
	j.Result = result
	j.ErrorMessage = nil
	j.FinishedAt = &now
	return nil
}

func (m *memStore) RequeueJob(_ context.Context, id uuid.UUID, lockedBy string, attempts int, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.held(id, lockedBy)
	if err != nil {
		return err
	}
	j.Status = models.JobStatusQueued
	j.Attempts = attempts
	j.ErrorMessage = &errMsg
	return nil
}

func (m *memStore) FailJob(_ context.Context, id uuid.UUID, lockedBy string, attempts int, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.held(id, lockedBy)
	if err != nil {
		return err
	}
	now := time.Now()
	j.Status = models.JobStatusError
	j.Attempts = attempts
	j.ErrorMessage = &errMsg
	j.FinishedAt = &now
	return nil
}

func (m *memStore) CancelJob(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	j, ok := m.jobs[id]
	if !ok || j.Status != models.JobStatusQueued {
		return store.ErrNotFound
	}
	m.writes++
	j.Status = models.JobStatusCancelled
	return nil
}

func (m *memStore) ListExpiredLeases(_ context.Context, now time.Time, limit int) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.Job
	for _, j := range m.jobs {
		if j.Status == models.JobStatusRunning && j.LeaseUntil != nil && j.LeaseUntil.Before(now) {
			cp := *j
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

var _ store.Store = (*memStore)(nil)

// recordingPublisher records every message it accepts.
type recordingPublisher struct {
	mu   sync.Mutex
	msgs []scheduler.Message
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, msg scheduler.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) messages() []scheduler.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]scheduler.Message(nil), p.msgs...)
}

// memCache is an in-memory cache.Cache.
type memCache struct {
	mu       sync.Mutex
	statuses map[uuid.UUID]string
	err      error
}

func newMemCache() *memCache {
	return &memCache{statuses: make(map[uuid.UUID]string)}
}

func (c *memCache) Ping(context.Context) error { return c.err }

func (c *memCache) SetJobStatus(_ context.Context, id uuid.UUID, status string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.statuses[id] = status
	return nil
}

func (c *memCache) GetJobStatus(_ context.Context, id uuid.UUID) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", false, c.err
	}
	s, ok := c.statuses[id]
	return s, ok, nil
}

func (c *memCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("not implemented")
}
