package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("questforge:job:%s:status", jobID)
}

func RateLimitKey(subject string) string {
	return fmt.Sprintf("questforge:ratelimit:%s", subject)
}

// Scheduler bridge keys.

func SchedulerDedupKey(dedupID string) string {
	return fmt.Sprintf("questforge:sched:dedup:%s", dedupID)
}

func SchedulerMessageKey(messageID string) string {
	return fmt.Sprintf("questforge:sched:msg:%s", messageID)
}

const (
	SchedulerDueKey        = "questforge:sched:due"
	SchedulerDeadLetterKey = "questforge:sched:dead"
)
