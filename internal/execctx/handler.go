package execctx

import (
	"context"
	"log/slog"
)

// Handler decorates records with the execution context fields found on the
// context passed to the *Context logging calls.
type Handler struct {
	inner slog.Handler
}

// NewHandler wraps inner.
func NewHandler(inner slog.Handler) *Handler {
	return &Handler{inner: inner}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if attrs := From(ctx).attrs(); len(attrs) > 0 {
			r = r.Clone()
			r.AddAttrs(attrs...)
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name)}
}

func (f Fields) attrs() []slog.Attr {
	var out []slog.Attr
	add := func(key, val string) {
		if val != "" {
			out = append(out, slog.String(key, val))
		}
	}
	add("request_id", f.RequestID)
	add("route", f.Route)
	add("method", f.Method)
	if f.StartedAtMs != 0 {
		out = append(out, slog.Int64("started_at_ms", f.StartedAtMs))
	}
	add("job_id", f.JobID)
	add("job_type", f.JobType)
	add("user_id", f.UserID)
	add("session_id", f.SessionID)
	add("chapter_id", f.ChapterID)
	add("adventure_id", f.AdventureID)
	add("quest_id", f.QuestID)
	return out
}
