package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/keiba/pkg/metrics"
)

// MetricsMiddleware records request count and latency for endpoint, and an
// error class for every 4xx or 5xx answer.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		ms := float64(time.Since(start).Milliseconds())
		code := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, code)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, ms)

		class, ok := errorClass(rec.status)
		if !ok {
			return
		}
		metrics.RecordErrorByEndpoint(endpoint, r.Method, class)
		metrics.RecordErrorByType(class, severity(rec.status))
		metrics.RecordErrorLatency("http", class, ms)
	}
}

// errorClass names the failure of a status. The read API answers 400 for a
// malformed date or key and 404 for an unknown race.
func errorClass(status int) (string, bool) {
	switch {
	case status >= http.StatusInternalServerError:
		return "server_error", true
	case status == http.StatusNotFound:
		return "not_found", true
	case status == http.StatusBadRequest:
		return "bad_request", true
	case status >= http.StatusBadRequest:
		return "client_error", true
	default:
		return "", false
	}
}

func severity(status int) string {
	if status >= http.StatusInternalServerError {
		return "high"
	}
	return "low"
}

// statusRecorder remembers the status a handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
