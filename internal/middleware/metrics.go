// Package middleware provides HTTP middleware for metrics collection.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/varkas/aegis/internal/metrics"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		endpoint := normalizeEndpoint(r.URL.Path)
		status := strconv.Itoa(wrapped.statusCode)

		metrics.RecordHTTPRequest(r.Method, endpoint, status, duration)
	})
}

func normalizeEndpoint(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/tasks/"):
		parts := strings.Split(strings.TrimPrefix(path, "/api/tasks/"), "/")
		if len(parts) >= 2 {
			return "/api/tasks/:id/" + parts[1]
		}

		return "/api/tasks/:id"
	case strings.HasPrefix(path, "/api/rules/"):
		parts := strings.Split(strings.TrimPrefix(path, "/api/rules/"), "/")
		if len(parts) >= 2 {
			return "/api/rules/:id/" + parts[1]
		}

		return "/api/rules/:id"
	case strings.HasPrefix(path, "/api/alerts/"):
		parts := strings.Split(strings.TrimPrefix(path, "/api/alerts/"), "/")
		if len(parts) >= 2 {
			return "/api/alerts/:id/" + parts[1]
		}

		return "/api/alerts/:id"
	default:
		return path
	}
}
