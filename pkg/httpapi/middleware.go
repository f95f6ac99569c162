// Package httpapi wires the orchestrator, knowledge exporter, and
// depth-recommendation heuristic to thin net/http handlers (spec §6),
// grounded on core/middleware.go's wrapped-ResponseWriter logging pattern.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/itsneelabh/intelcore/internal/corelog"
	"github.com/itsneelabh/intelcore/internal/ids"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// CorrelationFromContext returns the correlation id stashed by
// CorrelationMiddleware, or "" if none is present.
func CorrelationFromContext(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}

// CorrelationMiddleware assigns (or propagates) a correlation id for every
// request, generalized from the teacher's correlation-id-free
// LoggingMiddleware into spec §6's req-<random> convention.
func CorrelationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = ids.Correlation()
		}
		w.Header().Set("X-Correlation-ID", correlationID)
		ctx := context.WithValue(r.Context(), correlationIDKey, correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// responseWriter wraps http.ResponseWriter to capture status code, mirroring
// core/middleware.go's wrapper so SSE streaming (Flush) keeps working.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// LoggingMiddleware logs every request when devMode is set; otherwise it
// logs only requests with status >= 400 or slower than 1s, matching the
// teacher's production-mode behavior in core/middleware.go.
func LoggingMiddleware(logger corelog.Logger, devMode bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			shouldLog := devMode || wrapped.statusCode >= 400 || duration > time.Second
			if !shouldLog {
				return
			}

			fields := map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.statusCode,
				"duration_ms": duration.Milliseconds(),
				"remote_addr": r.RemoteAddr,
			}

			switch {
			case wrapped.statusCode >= 500:
				logger.ErrorWithContext(r.Context(), "http request error", fields)
			case wrapped.statusCode >= 400:
				logger.WarnWithContext(r.Context(), "http request client error", fields)
			case duration > time.Second:
				logger.WarnWithContext(r.Context(), "http request slow", fields)
			default:
				logger.InfoWithContext(r.Context(), "http request", fields)
			}
		})
	}
}
