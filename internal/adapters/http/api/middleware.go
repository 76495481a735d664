package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/pitch/pkg/logger"
	"github.com/okian/pitch/pkg/metrics"
)

// errorTypes names the statuses the handlers produce on purpose.
var errorTypes = map[int]string{ //nolint:gochecknoglobals // fixed table
	http.StatusBadRequest:          "invalid_input",
	http.StatusNotFound:            "not_found",
	http.StatusMethodNotAllowed:    "method_not_allowed",
	http.StatusConflict:            "conflict",
	http.StatusTooManyRequests:     "backpressure",
	http.StatusServiceUnavailable:  "not_started",
	http.StatusInternalServerError: "server_error",
}

// MetricsMiddleware records request count, latency and error class per endpoint.
// A panicking handler is answered with 500 and logged.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				logger.Get().Named("api").Error(r.Context(), "handler panicked",
					logger.String("endpoint", endpoint),
					logger.Any("panic", p))
				if !rec.wroteHeader {
					writeError(rec, http.StatusInternalServerError, "internal_error", nil)
				} else {
					rec.status = http.StatusInternalServerError
				}
			}
			observe(endpoint, r.Method, rec.status, start)
		}()

		next.ServeHTTP(rec, r)
	}
}

func observe(endpoint, method string, status int, start time.Time) {
	latencyMs := float64(time.Since(start).Microseconds()) / 1000
	code := strconv.Itoa(status)

	metrics.RecordHTTPRequest(endpoint, method, code)
	metrics.RecordHTTPRequestDuration(endpoint, method, code, latencyMs)
	if status < http.StatusBadRequest {
		return
	}
	kind := errorType(status)
	metrics.RecordErrorByEndpoint(endpoint, method, kind)
	metrics.RecordErrorByType(kind, errorSeverity(status))
	metrics.RecordErrorLatency("http", kind, latencyMs)
}

func errorType(status int) string {
	if t, ok := errorTypes[status]; ok {
		return t
	}
	if status >= http.StatusInternalServerError {
		return "server_error"
	}
	return "client_error"
}

// errorSeverity is high for server faults, medium for backpressure and low
// for requests the client can fix.
func errorSeverity(status int) string {
	switch {
	case status >= http.StatusInternalServerError:
		return "high"
	case status == http.StatusTooManyRequests:
		return "medium"
	default:
		return "low"
	}
}

// statusRecorder remembers the status written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("failed to write response: %w", err)
	}
	return n, nil
}
