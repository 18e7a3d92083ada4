package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/splax/hackhub/internal/domain"
)

type authContextKey string

type authInfo struct {
	UserID string
}

const contextKeyAuth authContextKey = "hackhub-auth-info"

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth ensures the request has a valid bearer token before invoking the handler.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// optionalAuth authenticates the request when credentials are present and
// otherwise lets it through as anonymous. Credentials that fail validation
// are rejected so clients know to refresh them.
func (r *Router) optionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if requestToken(req) == "" {
			next(w, req)
			return
		}
		r.requireAuth(next)(w, req)
	}
}

// ensureAuth validates the request credentials and enriches the context.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, authInfo, bool) {
	token := requestToken(req)
	if token == "" {
		if _, err := bearerToken(req.Header.Get("Authorization")); err != nil {
			r.logger.Warn("authorization header invalid", "error", err, "path", req.URL.Path)
		}
		writeError(w, http.StatusUnauthorized, "authentication required")
		return req.Context(), authInfo{}, false
	}
	user, err := r.auth.Authorize(req.Context(), token)
	if err != nil {
		r.logger.Warn("token validation failed", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "authentication failed")
		return req.Context(), authInfo{}, false
	}
	info := authInfo{UserID: user.ID}
	ctx := context.WithValue(req.Context(), contextKeyAuth, info)
	return ctx, info, true
}

// authInfoFromContext extracts auth metadata from context.
func authInfoFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(contextKeyAuth)
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	return info, ok
}

// callerFrom returns the service caller for the request, anonymous when unauthenticated.
func callerFrom(req *http.Request) domain.Caller {
	if info, ok := authInfoFromContext(req.Context()); ok {
		return domain.AsUser(info.UserID)
	}
	return domain.Anonymous
}

// requestToken reads the bearer token, falling back to the access_token query
// parameter on live routes where browsers cannot set headers.
func requestToken(req *http.Request) string {
	if token, err := bearerToken(req.Header.Get("Authorization")); err == nil {
		return token
	}
	if isLivePath(req.URL.Path) {
		return strings.TrimSpace(req.URL.Query().Get("access_token"))
	}
	return ""
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
