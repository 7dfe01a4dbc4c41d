package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"event-analytics-api/internal/event/domain"
	"event-analytics-api/internal/event/repository"
	"event-analytics-api/internal/event/service"
)

type fakeEventService struct {
	ingest     func(e *domain.Event) (*service.IngestResult, error)
	batch      func(events []*domain.Event) (*service.BatchResult, error)
	event      *domain.Event
	lastFilter repository.Filter
	listed     []*domain.Event
}

func (f *fakeEventService) Ingest(_ context.Context, e *domain.Event) (*service.IngestResult, error) {
	return f.ingest(e)
}

func (f *fakeEventService) IngestBatch(_ context.Context, events []*domain.Event) (*service.BatchResult, error) {
	return f.batch(events)
}

func (f *fakeEventService) Get(context.Context, string) (*domain.Event, error) {
	return f.event, nil
}

func (f *fakeEventService) List(_ context.Context, filter repository.Filter) ([]*domain.Event, error) {
	f.lastFilter = filter
	return f.listed, nil
}

func TestCreateStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		status string
		want   int
	}{
		{"new event", service.StatusCreated, http.StatusCreated},
		{"duplicate", service.StatusDuplicate, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeEventService{ingest: func(e *domain.Event) (*service.IngestResult, error) {
				return &service.IngestResult{EventID: e.EventID, Status: tc.status}, nil
			}}
			h := New(svc)

			body := `{"event_id":"e1","user_id":"u1","event_type":"page_view"}`
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			w := httptest.NewRecorder()
			h.Create(w, req)

			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
			var resp service.IngestResult
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tc.status {
				t.Errorf("status = %q, want %q", resp.Status, tc.status)
			}
		})
	}
}

func TestCreateValidationError(t *testing.T) {
	svc := &fakeEventService{ingest: func(*domain.Event) (*service.IngestResult, error) {
		return nil, fmt.Errorf("%w: user_id is required", service.ErrValidation)
	}}
	h := New(svc)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"event_type":"page_view"}`))
	w := httptest.NewRecorder()
	h.Create(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreateBatch(t *testing.T) {
	svc := &fakeEventService{batch: func(events []*domain.Event) (*service.BatchResult, error) {
		res := &service.BatchResult{Created: 2, Duplicates: 1}
		for _, e := range events {
			res.Items = append(res.Items, service.IngestResult{EventID: e.EventID, Status: service.StatusCreated})
		}
		return res, nil
	}}
	h := New(svc)

	body := `{"events":[
		{"event_id":"e1","user_id":"u1","event_type":"page_view"},
		{"event_id":"e2","user_id":"u1","event_type":"click"},
		{"event_id":"e1","user_id":"u1","event_type":"page_view"}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.CreateBatch(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	var resp service.BatchResult
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Created != 2 || resp.Duplicates != 1 || len(resp.Items) != 3 {
		t.Errorf("result = %+v", resp)
	}
}

func TestCreateBatchEmpty(t *testing.T) {
	h := New(&fakeEventService{})
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"events":[]}`))
	w := httptest.NewRecorder()
	h.CreateBatch(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func getWithParam(t *testing.T, h http.HandlerFunc, key, value string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func TestGetFound(t *testing.T) {
	e := &domain.Event{
		EventID:    "e1",
		UserID:     "u1",
		EventType:  "page_view",
		OccurredAt: time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
	}
	h := New(&fakeEventService{event: e})

	w := getWithParam(t, h.Get, "id", "e1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp eventResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.EventID != "e1" {
		t.Errorf("event_id = %q", resp.EventID)
	}
	if resp.Properties == nil {
		t.Errorf("properties omitted, want empty object")
	}
}

func TestGetNotFound(t *testing.T) {
	h := New(&fakeEventService{event: nil})
	w := getWithParam(t, h.Get, "id", "archived-or-unknown")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestListFilters(t *testing.T) {
	svc := &fakeEventService{listed: []*domain.Event{{EventID: "e1"}}}
	h := New(svc)

	req := httptest.NewRequest(http.MethodGet,
		"/?user_id=u1&event_type=click&from=2026-01-01T00:00:00Z&limit=25&offset=50", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	f := svc.lastFilter
	if f.UserID != "u1" || f.EventType != "click" || f.Limit != 25 || f.Offset != 50 {
		t.Errorf("filter = %+v", f)
	}
	if f.From.IsZero() || !f.To.IsZero() {
		t.Errorf("time bounds = from %v, to %v", f.From, f.To)
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 {
		t.Errorf("count = %d, want 1", resp.Count)
	}
}

func TestListBadTimestamp(t *testing.T) {
	h := New(&fakeEventService{})
	req := httptest.NewRequest(http.MethodGet, "/?from=yesterday", nil)
	w := httptest.NewRecorder()
	h.List(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
