package httpx

import (
	"log/slog"
	"net/http"
	"time"
)

// AccessLog returns a middleware that logs one record per request at DEBUG,
// or at WARN for responses with status >= 400.
func AccessLog(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		if next == nil {
			panic("httpx: nil next handler")
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw, ok := w.(*startedWriter)
			if !ok {
				sw = &startedWriter{ResponseWriter: w}
			}
			next.ServeHTTP(sw, r)

			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelDebug
			if status >= 400 {
				level = slog.LevelWarn
			}
			id, _ := RequestIDFromRequest(r)
			logger.Log(r.Context(), level, "control request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"request_id", id,
				"duration", time.Since(start),
			)
		})
	}
}
