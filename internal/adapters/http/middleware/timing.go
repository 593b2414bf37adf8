package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"bidwatch/internal/adapters/http/perf"
)

// StreamPrefix marks long-lived streaming endpoints.
const StreamPrefix = "/api/events"

// DefaultSlowRequest is the slow_request default.
const DefaultSlowRequest = 200 * time.Millisecond

// RouteMatcher resolves the registered pattern serving a request.
// *http.ServeMux satisfies it.
type RouteMatcher interface {
	Handler(r *http.Request) (h http.Handler, pattern string)
}

// recorder captures what a handler wrote.
type recorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rec *recorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *recorder) Write(p []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(p)
	rec.bytes += n
	return n, err
}

// Flush lets streaming handlers behind Timing flush partial responses.
func (rec *recorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rec *recorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// routeLabel names a request by its route pattern ("POST /api/watchers/stop")
// so perf stats group per endpoint. Unrouted requests keep their raw path.
func routeLabel(routes RouteMatcher, r *http.Request) string {
	if routes != nil {
		if _, pattern := routes.Handler(r); pattern != "" {
			if !strings.Contains(pattern, " ") {
				pattern = r.Method + " " + pattern
			}
			return pattern
		}
	}
	return r.Method + " " + r.URL.Path
}

// Timing returns middleware that times API requests. Requests at or above
// slow log at WARN, the rest at DEBUG. Event streams are skipped: they stay
// open for the life of the client. collector and routes may be nil.
func Timing(collector *perf.Collector, slow time.Duration, routes RouteMatcher) func(http.Handler) http.Handler {
	if slow <= 0 {
		slow = DefaultSlowRequest
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, StreamPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			route := routeLabel(routes, r)
			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			defer func() {
				elapsed := time.Since(start)
				durationMs := float64(elapsed.Microseconds()) / 1000.0
				level := slog.LevelDebug
				msg := "request"
				if elapsed >= slow {
					level, msg = slog.LevelWarn, "slow_request"
				}
				slog.Log(r.Context(), level, msg,
					"route", route,
					"status", rec.status,
					"bytes", rec.bytes,
					"duration_ms", durationMs,
				)
				if collector != nil {
					collector.Record(perf.Entry{
						Kind:       perf.KindRequest,
						Path:       route,
						StatusCode: rec.status,
						DurationMs: durationMs,
						Timestamp:  start,
					})
				}
			}()

			next.ServeHTTP(rec, r)
		})
	}
}
