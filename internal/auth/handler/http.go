// Package handler exposes the auth service over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"event-analytics-api/internal/audit"
	"event-analytics-api/internal/auth/service"
	"event-analytics-api/internal/server/httpx"
	"event-analytics-api/internal/server/middleware"
	userdomain "event-analytics-api/internal/user/domain"
)

// AuthService is the slice of the auth service the handler needs.
type AuthService interface {
	Signup(ctx context.Context, username, email, password string) (*userdomain.User, error)
	Login(ctx context.Context, username, password string) (*service.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*service.TokenPair, error)
	RevokeRefreshToken(ctx context.Context, refreshToken string) (bool, error)
	RevokeUserRefreshTokens(ctx context.Context, userID string) (int64, error)
	GetUser(ctx context.Context, id string) (*userdomain.User, error)
	GrantAdmin(ctx context.Context, username string) (*userdomain.User, error)
}

// Handler serves the /auth routes.
type Handler struct {
	svc   AuthService
	audit audit.AuditLogger
}

// New returns an auth handler. auditLogger may be nil to disable audit records.
func New(svc AuthService, auditLogger audit.AuditLogger) *Handler {
	return &Handler{svc: svc, audit: auditLogger}
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *userdomain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		IsActive:  u.IsActive,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
	}
}

func (h *Handler) logEvent(ctx context.Context, userID, action, metadata string) {
	if h.audit != nil {
		h.audit.LogEvent(ctx, userID, action, "user", metadata)
	}
}

// Signup handles POST /auth/signup.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	u, err := h.svc.Signup(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUsernameTaken) {
			httpx.WriteErr(w, http.StatusConflict, err.Error())
			return
		}
		httpx.WriteErr(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logEvent(r.Context(), u.ID, "auth.signup", "")
	httpx.WriteJSON(w, http.StatusCreated, toUserResponse(u))
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	pair, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.logEvent(r.Context(), "", "auth.login_failure", `{"username":`+strconv.Quote(req.Username)+`}`)
			httpx.WriteErr(w, http.StatusUnauthorized, err.Error())
			return
		}
		httpx.WriteErr(w, http.StatusInternalServerError, "login failed")
		return
	}
	h.logEvent(r.Context(), "", "auth.login", `{"username":`+strconv.Quote(req.Username)+`}`)
	httpx.WriteJSON(w, http.StatusOK, pair)
}

// Refresh handles POST /auth/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	pair, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefreshToken) {
			httpx.WriteErr(w, http.StatusUnauthorized, err.Error())
			return
		}
		httpx.WriteErr(w, http.StatusInternalServerError, "refresh failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pair)
}

// Logout handles POST /auth/logout. Revoking an already-revoked or unknown
// token is not an error; the response reports whether anything was revoked.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	revoked, err := h.svc.RevokeRefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		httpx.WriteErr(w, http.StatusInternalServerError, "logout failed")
		return
	}
	h.logEvent(r.Context(), "", "auth.logout", "")
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"revoked": revoked})
}

// LogoutAll handles POST /auth/logout-all. Requires auth.
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromContext(r.Context())
	if id == nil {
		httpx.WriteErr(w, http.StatusUnauthorized, "missing or invalid authorization")
		return
	}
	n, err := h.svc.RevokeUserRefreshTokens(r.Context(), id.UserID)
	if err != nil {
		httpx.WriteErr(w, http.StatusInternalServerError, "logout failed")
		return
	}
	h.logEvent(r.Context(), id.UserID, "auth.logout_all", "")
	httpx.WriteJSON(w, http.StatusOK, map[string]int64{"revoked_count": n})
}

// Me handles GET /auth/me. Requires auth.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromContext(r.Context())
	if id == nil {
		httpx.WriteErr(w, http.StatusUnauthorized, "missing or invalid authorization")
		return
	}
	u, err := h.svc.GetUser(r.Context(), id.UserID)
	if err != nil {
		httpx.WriteErr(w, http.StatusUnauthorized, "invalid token")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

// GrantAdmin handles POST /auth/grant-admin. Requires an admin caller.
func (h *Handler) GrantAdmin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	u, err := h.svc.GrantAdmin(r.Context(), req.Username)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			httpx.WriteErr(w, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrAlreadyAdmin):
			httpx.WriteErr(w, http.StatusConflict, err.Error())
		default:
			httpx.WriteErr(w, http.StatusInternalServerError, "grant failed")
		}
		return
	}
	callerID := ""
	if id := middleware.IdentityFromContext(r.Context()); id != nil {
		callerID = id.UserID
	}
	h.logEvent(r.Context(), callerID, "auth.grant_admin", `{"username":`+strconv.Quote(u.Username)+`}`)
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(u))
}
