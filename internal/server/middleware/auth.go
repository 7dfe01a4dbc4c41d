// Package middleware holds the HTTP middleware chain: bearer-token auth,
// admin gating, per-IP rate limiting, and request logging.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"event-analytics-api/internal/security"
	"event-analytics-api/internal/server/httpx"
	userdomain "event-analytics-api/internal/user/domain"
)

// Identity is the authenticated caller injected into the request context.
// IsAdmin comes from the user row at request time, not from the token, so a
// revoked admin loses access without waiting for token expiry.
type Identity struct {
	UserID   string
	Username string
	IsAdmin  bool
}

type contextKey string

const identityContextKey contextKey = "identity"

// WithIdentity injects the identity into the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext returns the identity from the context, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	v := ctx.Value(identityContextKey)
	if v == nil {
		return nil
	}
	id, _ := v.(*Identity)
	return id
}

// TokenVerifier validates an access JWT and returns its claims.
type TokenVerifier interface {
	VerifyAccessToken(tokenString string) (*security.AccessClaims, error)
}

// UserLoader resolves the user behind verified claims.
type UserLoader interface {
	GetUser(ctx context.Context, id string) (*userdomain.User, error)
}

// Auth validates bearer tokens and resolves the caller's identity.
type Auth struct {
	verifier TokenVerifier
	users    UserLoader
}

// NewAuth returns the auth middleware.
func NewAuth(verifier TokenVerifier, users UserLoader) *Auth {
	return &Auth{verifier: verifier, users: users}
}

// RequireAuth rejects requests without a valid access token or with a
// disabled account, and injects the Identity for downstream handlers.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			httpx.WriteErr(w, http.StatusUnauthorized, "missing or invalid authorization")
			return
		}
		claims, err := a.verifier.VerifyAccessToken(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			httpx.WriteErr(w, http.StatusUnauthorized, "invalid token")
			return
		}
		u, err := a.users.GetUser(r.Context(), claims.Subject)
		if err != nil || u == nil || !u.IsActive {
			httpx.WriteErr(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := WithIdentity(r.Context(), &Identity{
			UserID:   u.ID,
			Username: u.Username,
			IsAdmin:  u.IsAdmin,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects requests whose identity is missing or not an admin.
// Use after RequireAuth; a missing identity fails closed.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := IdentityFromContext(r.Context())
		if id == nil {
			httpx.WriteErr(w, http.StatusUnauthorized, "missing or invalid authorization")
			return
		}
		if !id.IsAdmin {
			httpx.WriteErr(w, http.StatusForbidden, "admin privileges required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the request's remote IP for audit logging. RealIP
// middleware has already folded proxy headers into RemoteAddr.
func ClientIP(ctx context.Context) string {
	v := ctx.Value(remoteAddrContextKey)
	if v == nil {
		return "unknown"
	}
	s, _ := v.(string)
	if s == "" {
		return "unknown"
	}
	return s
}

const remoteAddrContextKey contextKey = "remote_addr"

// CaptureRemoteAddr records the client address in the context so code below
// the HTTP layer (audit logging) can reach it without the request.
func CaptureRemoteAddr(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.RemoteAddr
		if i := strings.LastIndex(host, ":"); i > 0 && !strings.HasSuffix(host, "]") {
			host = host[:i]
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), remoteAddrContextKey, host)))
	})
}
