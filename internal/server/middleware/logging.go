package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dtorcivia/trainercal/internal/util"
)

// responseWriter wraps http.ResponseWriter to capture status code and size.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// ClientIP returns the caller address, honouring proxy headers. The headers
// are client supplied, so use it for logging only.
func ClientIP(r *http.Request) string {
	// First hop of a proxy chain
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	return RemoteIP(r)
}

// RemoteIP returns the host part of the connection's peer address.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// No port, e.g. a unix socket
		return r.RemoteAddr
	}
	return host
}

// Logging returns middleware that logs HTTP requests. The query string is
// left out because the OAuth callback carries the authorization code in it.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		rw := newResponseWriter(w)

		// Process request
		next.ServeHTTP(rw, r)

		logger := util.GetDefaultLogger().WithFields(map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
			"size":        rw.size,
			"client_ip":   ClientIP(r),
			"request_id":  rw.Header().Get("X-Request-ID"),
		})

		// Log at appropriate level based on status code
		switch {
		case rw.statusCode >= 500:
			logger.Error("HTTP request")
		case rw.statusCode >= 400:
			logger.Warn("HTTP request")
		default:
			logger.Info("HTTP request")
		}
	})
}

// RequestID returns middleware that tags every response with a request ID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Keep an ID set by a proxy in front of us
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}
