package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusDone      = "done"
	JobStatusError     = "error"
	JobStatusCancelled = "cancelled"
)

// Job types the engine knows how to dispatch. Every tag listed here must have a
// registered handler at startup.
const (
	JobTypeGenerateQuest     = "generate_quest"
	JobTypeGenerateRoom      = "generate_room"
	JobTypeGenerateCharacter = "generate_character"
	JobTypeGenerateChapter   = "generate_chapter"
	JobTypeDescribePhoto     = "describe_photo"
)

// JobTypes is the declared set of job_type tags.
var JobTypes = []string{
	JobTypeGenerateQuest,
	JobTypeGenerateRoom,
	JobTypeGenerateCharacter,
	JobTypeGenerateChapter,
	JobTypeDescribePhoto,
}

// Job is one durable unit of asynchronous AI-generation work. Producers insert
// rows as queued with zero attempts; afterwards only the engine mutates them.
//
// LockedAt and LockedBy are set only while Status is running. Result is set only
// when Status is done.
type Job struct {
	ID           uuid.UUID       `db:"id"            json:"id"`
	OwnerID      *string         `db:"owner_id"      json:"owner_id,omitempty"`
	SessionRef   *string         `db:"session_ref"   json:"session_ref,omitempty"`
	ChapterRef   *string         `db:"chapter_ref"   json:"chapter_ref,omitempty"`
	AdventureRef *string         `db:"adventure_ref" json:"adventure_ref,omitempty"`
	QuestRef     *string         `db:"quest_ref"     json:"quest_ref,omitempty"`
	JobType      string          `db:"job_type"      json:"job_type"`
	Payload      json.RawMessage `db:"payload"       json:"payload"`
	Status       string          `db:"status"        json:"status"`
	Priority     int             `db:"priority"      json:"priority"`
	Attempts     int             `db:"attempts"      json:"attempts"`
	MaxAttempts  int             `db:"max_attempts"  json:"max_attempts"`
	LockedAt     *time.Time      `db:"locked_at"     json:"locked_at,omitempty"`
	LockedBy     *string         `db:"locked_by"     json:"locked_by,omitempty"`
	LeaseUntil   *time.Time      `db:"lease_until"   json:"lease_until,omitempty"`
	StartedAt    *time.Time      `db:"started_at"    json:"started_at,omitempty"`
	FinishedAt   *time.Time      `db:"finished_at"   json:"finished_at,omitempty"`
	Result       json.RawMessage `db:"result"        json:"result,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time       `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"    json:"updated_at"`
}

var validTransitions = map[string][]string{
	JobStatusQueued:  {JobStatusRunning, JobStatusCancelled},
	JobStatusRunning: {JobStatusDone, JobStatusQueued, JobStatusError},
}

// CanTransition reports whether a job may move from one status to another.
// queued->cancelled is reserved for external actors; the engine never issues it.
func CanTransition(from, to string) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves the status.
func IsTerminal(status string) bool {
	switch status {
	case JobStatusDone, JobStatusError, JobStatusCancelled:
		return true
	}
	return false
}

func derefOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Refs returns the job's correlation references as plain strings, empty when unset.
func (j *Job) Refs() (owner, session, chapter, adventure, quest string) {
	return derefOr(j.OwnerID), derefOr(j.SessionRef), derefOr(j.ChapterRef),
		derefOr(j.AdventureRef), derefOr(j.QuestRef)
}
