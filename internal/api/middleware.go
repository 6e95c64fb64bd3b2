package api

import (
    "bufio"
    "errors"
    "net"
    "net/http"
    "strconv"
    "strings"
    "time"

    "tourplan/internal/metrics"
)

type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (r *statusRecorder) WriteHeader(code int) {
    if r.status == 0 { r.status = code }
    r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
    if r.status == 0 { r.status = http.StatusOK }
    return r.ResponseWriter.Write(p)
}

// Flush and Hijack keep SSE streaming and websocket upgrades working
// through the recorder.
func (r *statusRecorder) Flush() {
    if f, ok := r.ResponseWriter.(http.Flusher); ok { f.Flush() }
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    h, ok := r.ResponseWriter.(http.Hijacker)
    if !ok { return nil, nil, errors.New("hijack not supported") }
    if r.status == 0 { r.status = http.StatusSwitchingProtocols }
    return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// routeLabel collapses ids out of the path so metric labels stay bounded.
func routeLabel(path string) string {
    for _, p := range []string{"/v1/runs/", "/v1/subscriptions/", "/v1/admin/webhook-deliveries/", "/v1/admin/webhook-dlq/"} {
        if rest, ok := strings.CutPrefix(path, p); ok && rest != "" {
            parts := strings.Split(rest, "/")
            parts[0] = "{id}"
            return p + strings.Join(parts, "/")
        }
    }
    return path
}

// observe logs each request and records the HTTP metrics.
func (s *Server) observe(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w}
        next.ServeHTTP(rec, r)
        if rec.status == 0 { rec.status = http.StatusOK }
        dur := time.Since(start)
        code := strconv.Itoa(rec.status)
        route := routeLabel(r.URL.Path)
        metrics.HTTPRequests.WithLabelValues(r.Method, route, code).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, route, code).Observe(dur.Seconds())
        s.Log.Info("http request",
            "method", r.Method, "path", r.URL.Path, "status", rec.status,
            "duration", dur, "remote", r.RemoteAddr)
    })
}

// rateLimit rejects requests with 429 once the shared token bucket is empty.
// Health probes and /metrics bypass it.
func (s *Server) rateLimit(next http.Handler) http.Handler {
    if s.limiter == nil { return next }
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        switch r.URL.Path {
        case "/healthz", "/readyz", "/metrics":
            next.ServeHTTP(w, r)
            return
        }
        if !s.limiter.Allow() {
            metrics.RateLimited.Inc()
            w.Header().Set("Retry-After", "1")
            writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded", r.URL.Path)
            return
        }
        next.ServeHTTP(w, r)
    })
}

// limitBody caps request bodies at Server.MaxBodyBytes.
func (s *Server) limitBody(next http.Handler) http.Handler {
    limit := s.Cfg.Server.MaxBodyBytes
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if limit > 0 && r.Body != nil { r.Body = http.MaxBytesReader(w, r.Body, limit) }
        next.ServeHTTP(w, r)
    })
}

// recoverer turns handler panics into a 500 problem.
func (s *Server) recoverer(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        defer func() {
            if v := recover(); v != nil {
                if v == http.ErrAbortHandler { panic(v) }
                s.Log.Error("handler panic", "path", r.URL.Path, "panic", v)
                writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "", r.URL.Path)
            }
        }()
        next.ServeHTTP(w, r)
    })
}
