// Package execctx carries per-invocation correlation fields on a
// context.Context. Each scope belongs to one call tree, so two jobs running at
// once never see each other's fields.
package execctx

import (
	"context"
	"sync"
)

// Fields are the correlation values attached to an invocation. Empty strings
// and zero numbers mean unset.
type Fields struct {
	RequestID   string `json:"request_id,omitempty"`
	Route       string `json:"route,omitempty"`
	Method      string `json:"method,omitempty"`
	StartedAtMs int64  `json:"started_at_ms,omitempty"`

	JobID       string `json:"job_id,omitempty"`
	JobType     string `json:"job_type,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	ChapterID   string `json:"chapter_id,omitempty"`
	AdventureID string `json:"adventure_id,omitempty"`
	QuestID     string `json:"quest_id,omitempty"`
}

// merge copies every set field of p over f.
func (f *Fields) merge(p Fields) {
	set := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	set(&f.RequestID, p.RequestID)
	set(&f.Route, p.Route)
	set(&f.Method, p.Method)
	if p.StartedAtMs != 0 {
		f.StartedAtMs = p.StartedAtMs
	}
	set(&f.JobID, p.JobID)
	set(&f.JobType, p.JobType)
	set(&f.UserID, p.UserID)
	set(&f.SessionID, p.SessionID)
	set(&f.ChapterID, p.ChapterID)
	set(&f.AdventureID, p.AdventureID)
	set(&f.QuestID, p.QuestID)
}

// scope is the mutable state shared by every holder of one context subtree.
type scope struct {
	mu     sync.RWMutex
	fields Fields
}

type scopeKey struct{}

func current(ctx context.Context) *scope {
	s, _ := ctx.Value(scopeKey{}).(*scope)
	return s
}

// With returns a child context holding a fresh scope. The new scope starts from
// a snapshot of the parent scope (if any) overlaid with seed. Later patches to
// either scope do not reach the other.
func With(ctx context.Context, seed Fields) context.Context {
	s := &scope{fields: From(ctx)}
	s.fields.merge(seed)
	return context.WithValue(ctx, scopeKey{}, s)
}

// Run calls fn inside a fresh scope built by With.
func Run[T any](ctx context.Context, seed Fields, fn func(context.Context) (T, error)) (T, error) {
	return fn(With(ctx, seed))
}

// Patch merges partial into the nearest scope on ctx. It reports false when ctx
// carries no scope, in which case nothing is recorded.
func Patch(ctx context.Context, partial Fields) bool {
	s := current(ctx)
	if s == nil {
		return false
	}
	s.mu.Lock()
	s.fields.merge(partial)
	s.mu.Unlock()
	return true
}

// From returns a snapshot of the fields visible on ctx.
func From(ctx context.Context) Fields {
	s := current(ctx)
	if s == nil {
		return Fields{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fields
}
