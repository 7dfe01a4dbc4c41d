package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"event-analytics-api/internal/audit/domain"
)

type fakeReader struct {
	logs       []*domain.AuditLog
	lastLimit  int32
	lastOffset int32
	err        error
}

func (f *fakeReader) GetByID(_ context.Context, id string) (*domain.AuditLog, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, a := range f.logs {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeReader) List(_ context.Context, limit, offset int32) ([]*domain.AuditLog, error) {
	f.lastLimit, f.lastOffset = limit, offset
	return f.logs, f.err
}

func someLog(id string) *domain.AuditLog {
	return &domain.AuditLog{
		ID:        id,
		UserID:    "u1",
		Action:    "auth.login",
		Resource:  "user",
		IP:        "192.0.2.1",
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestList(t *testing.T) {
	reader := &fakeReader{logs: []*domain.AuditLog{someLog("a1"), someLog("a2")}}
	h := New(reader)

	req := httptest.NewRequest(http.MethodGet, "/?limit=50&offset=10", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if reader.lastLimit != 50 || reader.lastOffset != 10 {
		t.Errorf("limit/offset = %d/%d, want 50/10", reader.lastLimit, reader.lastOffset)
	}
	var resp struct {
		AuditLogs []auditLogResponse `json:"audit_logs"`
		Count     int                `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 || len(resp.AuditLogs) != 2 {
		t.Errorf("count = %d, logs = %d", resp.Count, len(resp.AuditLogs))
	}
	if resp.AuditLogs[0].Action != "auth.login" {
		t.Errorf("action = %q", resp.AuditLogs[0].Action)
	}
}

func TestList_ClampsLimit(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  int32
	}{
		{"missing", "", 100},
		{"zero", "?limit=0", 100},
		{"too large", "?limit=9999", 100},
		{"in range", "?limit=500", 500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reader := &fakeReader{}
			h := New(reader)
			req := httptest.NewRequest(http.MethodGet, "/"+tc.query, nil)
			h.List(httptest.NewRecorder(), req)
			if reader.lastLimit != tc.want {
				t.Errorf("limit = %d, want %d", reader.lastLimit, tc.want)
			}
		})
	}
}

func TestList_RepoError(t *testing.T) {
	h := New(&fakeReader{err: errors.New("db down")})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.List(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func getWithID(t *testing.T, h http.HandlerFunc, id string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func TestGet(t *testing.T) {
	h := New(&fakeReader{logs: []*domain.AuditLog{someLog("a1")}})

	w := getWithID(t, h.Get, "a1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp auditLogResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "a1" || resp.IP != "192.0.2.1" {
		t.Errorf("response = %+v", resp)
	}

	w = getWithID(t, h.Get, "missing")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", w.Code)
	}
}
