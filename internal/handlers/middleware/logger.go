package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Header to correlate bot backend and admin panel calls with access log
const RequestIDHeader = "X-Request-ID"

type logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// accessWriter remembers what was sent to the client
type accessWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *accessWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.size += n
	return n, err
}

func (w *accessWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// LoggerMiddleware writes access log line per request and echoes request id back.
// Id sent by the caller is kept, otherwise a new one is generated.
// Server errors are logged with warn level.
func LoggerMiddleware(l logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" || len(requestID) > 64 {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			aw := &accessWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(aw, r)

			log := l.Info
			if aw.status >= http.StatusInternalServerError {
				log = l.Warn
			}

			// Pattern is set by the mux once the route is matched
			log("HTTP request served",
				"request_id", requestID,
				"method", r.Method,
				"uri", r.RequestURI,
				"pattern", r.Pattern,
				"status", aw.status,
				"size", aw.size,
				"duration", time.Since(start),
			)
		})
	}
}
