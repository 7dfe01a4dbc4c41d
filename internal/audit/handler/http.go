// Package handler exposes audit log reads over HTTP. Writes happen only
// through the audit logger; these routes are admin-only.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"event-analytics-api/internal/audit/domain"
	"event-analytics-api/internal/server/httpx"
)

// AuditReader is the slice of the audit repository the handler needs.
type AuditReader interface {
	GetByID(ctx context.Context, id string) (*domain.AuditLog, error)
	List(ctx context.Context, limit, offset int32) ([]*domain.AuditLog, error)
}

// Handler serves the /audit-logs routes.
type Handler struct {
	repo AuditReader
}

// New returns an audit log handler.
func New(repo AuditReader) *Handler {
	return &Handler{repo: repo}
}

type auditLogResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	IP        string    `json:"ip"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toAuditLogResponse(a *domain.AuditLog) auditLogResponse {
	return auditLogResponse{
		ID:        a.ID,
		UserID:    a.UserID,
		Action:    a.Action,
		Resource:  a.Resource,
		IP:        a.IP,
		Metadata:  a.Metadata,
		CreatedAt: a.CreatedAt,
	}
}

// List handles GET /audit-logs with limit and offset query params.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}

	logs, err := h.repo.List(r.Context(), int32(limit), int32(offset))
	if err != nil {
		httpx.WriteErr(w, http.StatusInternalServerError, "listing failed")
		return
	}
	out := make([]auditLogResponse, len(logs))
	for i, a := range logs {
		out[i] = toAuditLogResponse(a)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"audit_logs": out,
		"count":      len(out),
	})
}

// Get handles GET /audit-logs/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteErr(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if a == nil {
		httpx.WriteErr(w, http.StatusNotFound, "audit log not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAuditLogResponse(a))
}
