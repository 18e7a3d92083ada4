package httpx

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

const rateLimiterSweepInterval = 5 * time.Minute

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	Allow(key string, limit int, window time.Duration) rateDecision
	Close()
}

type rateDecision struct {
	allowed   bool
	count     int
	windowEnd time.Time
}

type memoryRateLimiter struct {
	mu      sync.Mutex
	entries map[string]rateState
	stopCh  chan struct{}
	once    sync.Once
}

type rateState struct {
	count     int
	windowEnd time.Time
}

// NewMemoryRateLimiter returns a process-local limiter that sweeps expired windows.
func NewMemoryRateLimiter() RateLimiter {
	rl := &memoryRateLimiter{
		entries: make(map[string]rateState),
		stopCh:  make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

func (rl *memoryRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	state, ok := rl.entries[key]
	if !ok || now.After(state.windowEnd) {
		state = rateState{count: 1, windowEnd: now.Add(window)}
		rl.entries[key] = state
		return rateDecision{allowed: true, count: state.count, windowEnd: state.windowEnd}
	}
	if state.count >= limit {
		return rateDecision{allowed: false, count: state.count, windowEnd: state.windowEnd}
	}
	state.count++
	rl.entries[key] = state
	return rateDecision{allowed: true, count: state.count, windowEnd: state.windowEnd}
}

func (rl *memoryRateLimiter) sweepLoop() {
	ticker := time.NewTicker(rateLimiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *memoryRateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, state := range rl.entries {
		if now.After(state.windowEnd) {
			delete(rl.entries, key)
		}
	}
}

func (rl *memoryRateLimiter) Close() {
	rl.once.Do(func() {
		close(rl.stopCh)
	})
}

// authMode says how a route treats the bearer token.
type authMode int

const (
	authNone authMode = iota
	authOptional
	authRequired
)

// ratePolicy is the limit and auth requirement for one "METHOD /route".
// Authenticated routes count per user; the rest count per client IP.
type ratePolicy struct {
	limit  int
	window time.Duration
	auth   authMode
}

var (
	signupPolicy  = ratePolicy{limit: rateLimitSignup, window: rateWindowDefault}
	loginPolicy   = ratePolicy{limit: rateLimitLogin, window: rateWindowDefault}
	refreshPolicy = ratePolicy{limit: rateLimitRefresh, window: rateWindowDefault}
	readPolicy    = ratePolicy{limit: rateLimitUserRead, window: rateWindowDefault, auth: authOptional}
	writePolicy   = ratePolicy{limit: rateLimitUserWrite, window: rateWindowDefault, auth: authRequired}
	uploadPolicy  = ratePolicy{limit: rateLimitUpload, window: rateWindowDefault, auth: authRequired}
	blobPolicy    = ratePolicy{limit: rateLimitUserRead, window: rateWindowDefault}
	storePolicy   = ratePolicy{limit: rateLimitUpload, window: rateWindowDefault}
	livePolicy    = ratePolicy{limit: rateLimitLive, window: rateWindowRealtime, auth: authOptional}
)

var routePolicies = map[string]ratePolicy{
	"POST /auth/signup":           signupPolicy,
	"POST /auth/login":            loginPolicy,
	"POST /auth/refresh":          refreshPolicy,
	"GET /profile":                readPolicy,
	"PUT /profile":                writePolicy,
	"POST /profile/upload-target": uploadPolicy,
	"PUT /profile/image":          writePolicy,
	"POST /storage/upload":        storePolicy,
	"GET /storage/{id}":           blobPolicy,
	"GET /teams":                  readPolicy,
	"POST /teams":                 writePolicy,
	"GET /teams/mine":             readPolicy,
	"GET /teams/{id}":             readPolicy,
	"PATCH /teams/{id}":           writePolicy,
	"POST /teams/{id}/join":       writePolicy,
	"POST /teams/{id}/leave":      writePolicy,
	"POST /teams/{id}/vote":       writePolicy,
	"GET /teams/{id}/comments":    readPolicy,
	"POST /teams/{id}/comments":   writePolicy,
	"GET /teams/{id}/members":     readPolicy,
	"PUT /teams/{id}/image":       writePolicy,
	"GET /ws/live":                livePolicy,
	"GET /events":                 livePolicy,
}

// limited wraps next with the auth and rate policy registered for name.
// An unknown name is a programming error.
func (r *Router) limited(name string, next http.HandlerFunc) http.HandlerFunc {
	policy, ok := routePolicies[name]
	if !ok {
		panic("httpx: no rate policy for " + name)
	}
	_, route, _ := strings.Cut(name, " ")
	switch policy.auth {
	case authRequired:
		return r.requireAuth(r.withRateLimit(route, policy, rateLimitKeyUser, next))
	case authOptional:
		return r.optionalAuth(r.withRateLimit(route, policy, rateLimitKeyUser, next))
	default:
		return r.withRateLimit(route, policy, rateLimitKeyIP, next)
	}
}

func (r *Router) withRateLimit(route string, policy ratePolicy, keyFn func(*http.Request) string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if policy.limit <= 0 || r.limiter == nil {
			next(w, req)
			return
		}
		key := keyFn(req)
		if key == "" {
			key = rateLimitKeyIP(req)
		}
		decision := r.limiter.Allow(key, policy.limit, policy.window)
		r.applyRateHeaders(w, policy.limit, decision)
		if !decision.allowed {
			r.metrics.recordRateLimitHit(route, rateMetricKey(key))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, req)
	}
}

func rateLimitKeyUser(req *http.Request) string {
	if info, ok := authInfoFromContext(req.Context()); ok && info.UserID != "" {
		return "user:" + info.UserID
	}
	return ""
}

func rateLimitKeyIP(req *http.Request) string {
	host := clientIP(req)
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

func rateMetricKey(key string) string {
	if key == "" {
		return "unknown"
	}
	if idx := strings.IndexRune(key, ':'); idx > 0 {
		return key[:idx]
	}
	return key
}
