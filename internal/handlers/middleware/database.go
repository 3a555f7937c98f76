// internal/handlers/middleware/database.go
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/ammerola/pgsession/internal/core/ports"
	"github.com/ammerola/pgsession/internal/core/session"
	"github.com/ammerola/pgsession/internal/pkg/metrics"
)

// Database gives each request its own database session and manages its
// lifecycle: the session is torn down when the request finishes, and any
// open transaction is committed only when the handler produced a
// non-error response. Handlers reach the session through the request
// context; no connection is dialed until a handler actually asks for one.
func Database(p ports.ConnectionPool, l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := session.New(p, l)
			ctx := session.WithContext(r.Context(), sess)

			// Teardown runs even when the handler panics, so the
			// connection always finds its way back to the pool.
			defer sess.Teardown(ctx)

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			if !sess.Bound() {
				return
			}

			if wrapped.statusCode >= http.StatusInternalServerError {
				metrics.CommitsTotal.WithLabelValues("skipped").Inc()
				l.DebugContext(ctx, "skipping commit after error response",
					slog.Int("status", wrapped.statusCode))
				return
			}

			if err := sess.Commit(ctx); err != nil {
				metrics.CommitsTotal.WithLabelValues("error").Inc()
				l.ErrorContext(ctx, "commit failed", slog.Any("error", err))
				if !wrapped.written {
					wrapped.Header().Set("Content-Type", "application/json")
					wrapped.WriteHeader(http.StatusInternalServerError)
					wrapped.Write([]byte(`{"error":"Internal Server Error"}`))
				}
				return
			}
			metrics.CommitsTotal.WithLabelValues("ok").Inc()
		})
	}
}
