package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/questforge/internal/execctx"
)

// RequestIDHeader is read from incoming requests and echoed on responses.
const RequestIDHeader = "X-Request-ID"

// RequestScope opens a fresh execution context for each request, seeded with
// the request id, path, method and start time.
func RequestScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := execctx.With(r.Context(), execctx.Fields{
			RequestID:   id,
			Route:       r.URL.Path,
			Method:      r.Method,
			StartedAtMs: time.Now().UnixMilli(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the id RequestScope assigned to r.
func RequestID(r *http.Request) string {
	return execctx.From(r.Context()).RequestID
}
