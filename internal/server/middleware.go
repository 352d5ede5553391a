package server

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/maruel/coedit/internal/server/dto"
	"github.com/maruel/coedit/internal/server/reqctx"
)

// statusRecorder remembers the status code written.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// RecoverMiddleware turns a handler panic into a 500 response.
//
// Unlocking a row held by another client panics in the document layer; the
// offending request fails while the server keeps running.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			slog.ErrorContext(r.Context(), "Handler panic", "panic", v, "method", r.Method, "path", r.URL.Path, "stack", string(debug.Stack()))
			if rec.status == 0 {
				apiErr := dto.Internal("internal error")
				writeErrorResponseWithCode(rec, apiErr.StatusCode(), apiErr.Code(), apiErr.Error(), nil)
			}
		}()
		next.ServeHTTP(rec, r)
	})
}

// LoggingMiddleware logs every request at debug level.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		slog.DebugContext(r.Context(), "http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"dur", time.Since(start).Round(time.Microsecond),
			"ip", reqctx.GetClientIP(r),
		)
	})
}
