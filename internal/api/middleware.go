package api

import (
	"bufio"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"breadfleet/internal/metrics"
)

// statusWriter captures the response status for metrics while forwarding
// Flush and Hijack so SSE and WebSocket handlers keep working.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return w.ResponseWriter.(http.Hijacker).Hijack()
}

// MetricsMiddleware records request counts and durations on the dedicated
// registry.
func MetricsMiddleware(next http.Handler) http.Handler {
	metrics.RegisterDefault()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		status := strconv.Itoa(sw.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
	})
}

// RateLimitMiddleware applies a process-wide token bucket. Tuned via
// RATE_LIMIT_RPS and RATE_LIMIT_BURST; defaults are generous enough for a
// single dispatcher UI.
func RateLimitMiddleware(next http.Handler) http.Handler {
	rps := 50.0
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			rps = f
		}
	}
	burst := 100
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			burst = n
		}
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			writeProblem(w, http.StatusTooManyRequests, "Rate limit exceeded", "", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}
