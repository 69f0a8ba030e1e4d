package worker

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/questforge/internal/retry"
	"github.com/kiranshivaraju/questforge/pkg/models"
)

// Outcome is the handled result of one Run invocation.
type Outcome struct {
	StatusCode int
	JobID      uuid.UUID
	Skipped    bool
	Status     string
	Attempts   int
	Retried    bool
	RetryIn    time.Duration
}

func skipped(id uuid.UUID) *Outcome {
	return &Outcome{StatusCode: http.StatusOK, JobID: id, Skipped: true}
}

func done(id uuid.UUID) *Outcome {
	return &Outcome{StatusCode: http.StatusOK, JobID: id, Status: models.JobStatusDone}
}

func requeued(id uuid.UUID, attempts int, delay time.Duration) *Outcome {
	return &Outcome{
		StatusCode: http.StatusAccepted,
		JobID:      id,
		Status:     models.JobStatusQueued,
		Attempts:   attempts,
		Retried:    true,
		RetryIn:    delay,
	}
}

func failed(id uuid.UUID, attempts int) *Outcome {
	return &Outcome{StatusCode: http.StatusOK, JobID: id, Status: models.JobStatusError, Attempts: attempts}
}

// Body renders the response body the pushing scheduler receives.
func (o *Outcome) Body() map[string]any {
	switch {
	case o.Skipped:
		return map[string]any{"ok": true, "skipped": true}
	case o.Status == models.JobStatusDone:
		return map[string]any{"ok": true, "jobId": o.JobID.String(), "status": o.Status}
	case o.Retried:
		return map[string]any{
			"ok":               false,
			"status":           o.Status,
			"attempts":         o.Attempts,
			"retried":          true,
			"retry_in_seconds": retry.Seconds(o.RetryIn),
		}
	default:
		return map[string]any{"ok": false, "status": o.Status, "attempts": o.Attempts, "retried": false}
	}
}
