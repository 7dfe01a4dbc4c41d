// Package handler exposes event ingestion and listing over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"event-analytics-api/internal/event/domain"
	"event-analytics-api/internal/event/repository"
	"event-analytics-api/internal/event/service"
	"event-analytics-api/internal/server/httpx"
)

// EventService is the slice of the ingestion service the handler needs.
type EventService interface {
	Ingest(ctx context.Context, e *domain.Event) (*service.IngestResult, error)
	IngestBatch(ctx context.Context, events []*domain.Event) (*service.BatchResult, error)
	Get(ctx context.Context, eventID string) (*domain.Event, error)
	List(ctx context.Context, f repository.Filter) ([]*domain.Event, error)
}

// Handler serves the /events routes.
type Handler struct {
	svc EventService
}

// New returns an event handler.
func New(svc EventService) *Handler {
	return &Handler{svc: svc}
}

type eventRequest struct {
	EventID    string         `json:"event_id"`
	UserID     string         `json:"user_id"`
	EventType  string         `json:"event_type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties"`
}

func (req *eventRequest) toDomain() *domain.Event {
	return &domain.Event{
		EventID:    req.EventID,
		UserID:     req.UserID,
		EventType:  req.EventType,
		OccurredAt: req.OccurredAt,
		Properties: req.Properties,
	}
}

type eventResponse struct {
	EventID    string         `json:"event_id"`
	UserID     string         `json:"user_id"`
	EventType  string         `json:"event_type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"created_at"`
}

func toEventResponse(e *domain.Event) eventResponse {
	props := e.Properties
	if props == nil {
		props = map[string]any{}
	}
	return eventResponse{
		EventID:    e.EventID,
		UserID:     e.UserID,
		EventType:  e.EventType,
		OccurredAt: e.OccurredAt,
		Properties: props,
		CreatedAt:  e.CreatedAt,
	}
}

// Create handles POST /events: one event, idempotent by event_id.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := h.svc.Ingest(r.Context(), req.toDomain())
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			httpx.WriteErr(w, http.StatusBadRequest, err.Error())
			return
		}
		httpx.WriteErr(w, http.StatusInternalServerError, "ingest failed")
		return
	}
	code := http.StatusCreated
	if res.Status == service.StatusDuplicate {
		code = http.StatusOK
	}
	httpx.WriteJSON(w, code, res)
}

// CreateBatch handles POST /events/batch with per-item outcomes.
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Events []eventRequest `json:"events"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Events) == 0 {
		httpx.WriteErr(w, http.StatusBadRequest, "events must be non-empty")
		return
	}
	events := make([]*domain.Event, len(req.Events))
	for i := range req.Events {
		events[i] = req.Events[i].toDomain()
	}
	res, err := h.svc.IngestBatch(r.Context(), events)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			httpx.WriteErr(w, http.StatusBadRequest, err.Error())
			return
		}
		httpx.WriteErr(w, http.StatusInternalServerError, "ingest failed")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

// Get handles GET /events/{id}. An archived event is 404 here; it lives in
// the cold tier.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteErr(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if e == nil {
		httpx.WriteErr(w, http.StatusNotFound, "event not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toEventResponse(e))
}

// List handles GET /events with user_id, event_type, from, to, limit, and
// offset query filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.Filter{
		UserID:    q.Get("user_id"),
		EventType: q.Get("event_type"),
	}
	var err error
	if f.From, err = parseTimeParam(q.Get("from")); err != nil {
		httpx.WriteErr(w, http.StatusBadRequest, "invalid 'from' timestamp")
		return
	}
	if f.To, err = parseTimeParam(q.Get("to")); err != nil {
		httpx.WriteErr(w, http.StatusBadRequest, "invalid 'to' timestamp")
		return
	}
	f.Limit = parseIntParam(q.Get("limit"))
	f.Offset = parseIntParam(q.Get("offset"))

	events, err := h.svc.List(r.Context(), f)
	if err != nil {
		httpx.WriteErr(w, http.StatusInternalServerError, "listing failed")
		return
	}
	out := make([]eventResponse, len(events))
	for i, e := range events {
		out[i] = toEventResponse(e)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"events": out,
		"count":  len(out),
	})
}

func parseTimeParam(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func parseIntParam(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
