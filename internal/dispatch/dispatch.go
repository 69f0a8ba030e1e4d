// Package dispatch maps a job's type tag to the handler that executes it.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/kiranshivaraju/questforge/pkg/models"
)

var (
	ErrUnknownJobType = errors.New("unknown job type")
	ErrHandlerPanic   = errors.New("handler panicked")
)

// Correlation carries the domain ids a job was created with.
type Correlation struct {
	OwnerID     string
	SessionID   string
	ChapterID   string
	AdventureID string
	QuestID     string
}

// Input is what a handler receives for one job.
type Input struct {
	JobID       string
	JobType     string
	Payload     json.RawMessage
	Correlation Correlation
}

// Handler executes one job type. It returns a JSON-serializable result or a
// descriptive error. Handlers never touch the job row.
type Handler interface {
	Handle(ctx context.Context, in Input) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, in Input) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, in Input) (any, error) {
	return f(ctx, in)
}

// Registry holds the job_type to Handler mapping. Registration happens at
// startup; Dispatch may then be called concurrently.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds h for jobType. It panics on an empty tag or a tag that is
// already registered.
func (r *Registry) Register(jobType string, h Handler) {
	if jobType == "" {
		panic("dispatch: empty job type")
	}
	if h == nil {
		panic(fmt.Sprintf("dispatch: nil handler for %s", jobType))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[jobType]; ok {
		panic(fmt.Sprintf("dispatch: job type %s already registered", jobType))
	}
	r.handlers[jobType] = h
}

// JobTypes returns the registered tags, sorted.
func (r *Registry) JobTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Validate checks that the registry covers exactly the declared tags.
func (r *Registry) Validate(declared []string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := make(map[string]bool, len(declared))
	var missing []string
	for _, t := range declared {
		want[t] = true
		if _, ok := r.handlers[t]; !ok {
			missing = append(missing, t)
		}
	}
	var extra []string
	for t := range r.handlers {
		if !want[t] {
			extra = append(extra, t)
		}
	}
	sort.Strings(extra)

	switch {
	case len(missing) > 0 && len(extra) > 0:
		return fmt.Errorf("dispatch: no handler for %s; undeclared handlers %s",
			strings.Join(missing, ", "), strings.Join(extra, ", "))
	case len(missing) > 0:
		return fmt.Errorf("dispatch: no handler for %s", strings.Join(missing, ", "))
	case len(extra) > 0:
		return fmt.Errorf("dispatch: undeclared handlers %s", strings.Join(extra, ", "))
	}
	return nil
}

// Dispatch runs the handler registered for job.JobType and returns its result
// as JSON. A nil result is stored as an empty object.
func (r *Registry) Dispatch(ctx context.Context, job *models.Job) (json.RawMessage, error) {
	r.mu.RLock()
	h, ok := r.handlers[job.JobType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, job.JobType)
	}

	owner, session, chapter, adventure, quest := job.Refs()
	res, err := handle(ctx, h, Input{
		JobID:   job.ID.String(),
		JobType: job.JobType,
		Payload: job.Payload,
		Correlation: Correlation{
			OwnerID:     owner,
			SessionID:   session,
			ChapterID:   chapter,
			AdventureID: adventure,
			QuestID:     quest,
		},
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return json.RawMessage(`{}`), nil
	}
	if raw, ok := res.(json.RawMessage); ok && len(raw) > 0 {
		return raw, nil
	}

	out, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal %s result: %w", job.JobType, err)
	}
	if string(out) == "null" {
		return json.RawMessage(`{}`), nil
	}
	return out, nil
}

// handle runs h and converts a panic into an ErrHandlerPanic error so the
// claimed job still goes through the retry policy.
func handle(ctx context.Context, h Handler, in Input) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "job handler panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			res, err = nil, fmt.Errorf("%w: %s: %v", ErrHandlerPanic, in.JobType, r)
		}
	}()
	return h.Handle(ctx, in)
}

// Failure kinds reported by Kind.
const (
	KindUnknownJobType = "unknown_job_type"
	KindValidation     = "validation"
	KindPanic          = "panic"
	KindExecution      = "execution"
)

// Kind classifies a Dispatch error for logging.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrUnknownJobType):
		return KindUnknownJobType
	case errors.Is(err, ErrInvalidPayload):
		return KindValidation
	case errors.Is(err, ErrHandlerPanic):
		return KindPanic
	default:
		return KindExecution
	}
}
