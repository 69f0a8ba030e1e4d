// Package retry decides what happens to a job after a failed attempt.
package retry

import (
	"fmt"
	"time"
)

// Strategy computes the delay before retry attempt n (1-indexed).
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Table is a lookup backoff: attempt n waits Table[n-1], and attempts past the
// end reuse the last entry.
type Table []time.Duration

// DefaultTable is the job retry schedule.
var DefaultTable = Table{
	15 * time.Second,
	60 * time.Second,
	180 * time.Second,
	600 * time.Second,
	1800 * time.Second,
}

func (t Table) Delay(attempt int) time.Duration {
	if len(t) == 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(t) {
		attempt = len(t)
	}
	return t[attempt-1]
}

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := e.Initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if e.Max > 0 && d >= e.Max {
			return e.Max
		}
	}
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// Decision is the outcome of one failed attempt.
type Decision struct {
	// NextAttempts is the attempt count to persist.
	NextAttempts int
	// Retry is true when the job goes back to queued.
	Retry bool
	// Delay is how long the retry push should wait. Zero when Retry is false.
	Delay time.Duration
}

// Policy applies a backoff strategy to the attempt ceiling of a job.
type Policy struct {
	Backoff Strategy
}

// NewPolicy returns a Policy over the given table, or DefaultTable when empty.
func NewPolicy(table Table) Policy {
	if len(table) == 0 {
		table = DefaultTable
	}
	return Policy{Backoff: table}
}

// Decide counts the failed attempt and reports whether another one is allowed.
func (p Policy) Decide(attempts, maxAttempts int) Decision {
	next := attempts + 1
	if next >= maxAttempts {
		return Decision{NextAttempts: next}
	}
	return Decision{NextAttempts: next, Retry: true, Delay: p.Backoff.Delay(next)}
}

// DedupKey identifies the retry push for one attempt of a job.
func DedupKey(jobID string, attempt int) string {
	return fmt.Sprintf("%s:retry:%d", jobID, attempt)
}

// RunKey identifies the first push for a newly enqueued job.
func RunKey(jobID string) string {
	return jobID + ":run"
}

// LeaseKey identifies the push issued when an expired lease is recovered.
func LeaseKey(jobID string, attempt int) string {
	return fmt.Sprintf("%s:lease:%d", jobID, attempt)
}

// Seconds rounds d up to whole seconds.
func Seconds(d time.Duration) int {
	s := d / time.Second
	if d%time.Second != 0 {
		s++
	}
	return int(s)
}
