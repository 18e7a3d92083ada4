package httpx

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/splax/hackhub/internal/service/auth"
	"github.com/splax/hackhub/internal/service/profile"
	"github.com/splax/hackhub/internal/service/storage"
	"github.com/splax/hackhub/internal/service/team"
	"github.com/splax/hackhub/internal/ws"
)

// Services bundles the application services the router exposes.
type Services struct {
	Auth     auth.Service
	Profiles profile.Service
	Teams    team.Service
	Storage  storage.Service
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	auth      auth.Service
	profiles  profile.Service
	teams     team.Service
	storage   storage.Service
	hub       *ws.Hub
	upgrader  websocket.Upgrader
	limiter   RateLimiter
	metrics   *metrics
	dbHealth  func(context.Context) error
	heartbeat time.Duration
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitSignup    = 5
	rateLimitLogin     = 12
	rateLimitRefresh   = 30
	rateLimitUserWrite = 60
	rateLimitUserRead  = 120
	rateLimitUpload    = 20
	rateLimitLive      = 30
	healthCheckTimeout = 2 * time.Second
	defaultHeartbeat   = 15 * time.Second
)

// NewRouter assembles routes with dependencies. A nil limiter selects the
// in-memory limiter; a zero heartbeat selects the default SSE heartbeat.
func NewRouter(logger *slog.Logger, svc Services, hub *ws.Hub, limiter RateLimiter, heartbeat time.Duration, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		auth:     svc.Auth,
		profiles: svc.Profiles,
		teams:    svc.Teams,
		storage:  svc.Storage,
		hub:      hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:   limiter,
		metrics:   newMetrics(),
		dbHealth:  dbHealth,
		heartbeat: heartbeat,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if r.heartbeat <= 0 {
		r.heartbeat = defaultHeartbeat
	}
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", r.metrics.handler())

	r.mux.HandleFunc("/auth/signup", r.audit("/auth/signup", r.limited("POST /auth/signup", r.handleSignup)))
	r.mux.HandleFunc("/auth/login", r.audit("/auth/login", r.limited("POST /auth/login", r.handleLogin)))
	r.mux.HandleFunc("/auth/refresh", r.audit("/auth/refresh", r.limited("POST /auth/refresh", r.handleRefresh)))

	r.mux.HandleFunc("/profile", r.audit("/profile", r.handleProfile))
	r.mux.HandleFunc("/profile/upload-target", r.audit("/profile/upload-target", r.limited("POST /profile/upload-target", r.handleProfileUploadTarget)))
	r.mux.HandleFunc("/profile/image", r.audit("/profile/image", r.limited("PUT /profile/image", r.handleProfileImage)))

	r.mux.HandleFunc("/storage/upload", r.audit("/storage/upload", r.limited("POST /storage/upload", r.handleStorageUpload)))
	r.mux.HandleFunc("/storage/", r.audit("/storage/{id}", r.limited("GET /storage/{id}", r.handleStorageGet)))

	r.mux.HandleFunc("/teams", r.audit("/teams", r.handleTeams))
	r.mux.HandleFunc("/teams/", r.audit("/teams/{id}", r.handleTeamSubroutes))

	r.mux.HandleFunc("/ws/live", r.audit("/ws/live", r.limited("GET /ws/live", r.handleLiveWS)))
	r.mux.HandleFunc("/events", r.audit("/events", r.limited("GET /events", r.handleLiveSSE)))
}

func isLivePath(path string) bool {
	return path == "/ws/live" || path == "/events"
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.metrics.recordRequest(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		} else if req.URL.Path == "/storage/upload" {
			actor = "uploader"
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		if sr.status == 0 {
			sr.status = http.StatusSwitchingProtocols
		}
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
