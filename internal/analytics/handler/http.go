// Package handler exposes hot-tier analytics over HTTP.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"event-analytics-api/internal/analytics"
	"event-analytics-api/internal/event/repository"
	"event-analytics-api/internal/server/httpx"
)

// StatsService is the slice of the analytics service the handler needs.
type StatsService interface {
	Overview(ctx context.Context) (*analytics.Overview, error)
	DAU(ctx context.Context, days int) ([]repository.DailyCount, error)
	TopEvents(ctx context.Context, days, limit int) ([]repository.TypeCount, error)
	Retention(ctx context.Context, weeks int) ([]analytics.RetentionPoint, error)
}

// Handler serves the /stats routes.
type Handler struct {
	svc StatsService
}

// New returns an analytics handler.
func New(svc StatsService) *Handler {
	return &Handler{svc: svc}
}

// Summary handles GET /stats/summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Overview(r.Context())
	if err != nil {
		httpx.WriteErr(w, http.StatusInternalServerError, "stats query failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// DAU handles GET /stats/dau?days=N.
func (h *Handler) DAU(w http.ResponseWriter, r *http.Request) {
	points, err := h.svc.DAU(r.Context(), intParam(r, "days"))
	if err != nil {
		httpx.WriteErr(w, http.StatusInternalServerError, "stats query failed")
		return
	}
	out := make([]map[string]any, len(points))
	for i, p := range points {
		out[i] = map[string]any{"date": p.Date, "daily_active_users": p.Count}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"series": out})
}

// Top handles GET /stats/top?days=N&limit=N.
func (h *Handler) Top(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.TopEvents(r.Context(), intParam(r, "days"), intParam(r, "limit"))
	if err != nil {
		httpx.WriteErr(w, http.StatusInternalServerError, "stats query failed")
		return
	}
	out := make([]map[string]any, len(counts))
	for i, c := range counts {
		out[i] = map[string]any{"event_type": c.EventType, "count": c.Count}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"top_events": out})
}

// Retention handles GET /stats/retention?weeks=N. The hot tier's window is
// shorter than a cohort, so the series is empty; cohort analysis is served by
// the cold tier's retention endpoint.
func (h *Handler) Retention(w http.ResponseWriter, r *http.Request) {
	points, err := h.svc.Retention(r.Context(), intParam(r, "weeks"))
	if err != nil {
		httpx.WriteErr(w, http.StatusInternalServerError, "stats query failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"cohorts": points,
		"note":    "hot tier holds less than one cohort window; use /cold-storage/retention-cohort",
	})
}

func intParam(r *http.Request, name string) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
