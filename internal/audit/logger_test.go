package audit

import (
	"context"
	"errors"
	"testing"

	"event-analytics-api/internal/audit/domain"
)

type memAuditRepo struct {
	entries []*domain.AuditLog
	err     error
}

func (m *memAuditRepo) GetByID(_ context.Context, id string) (*domain.AuditLog, error) {
	for _, e := range m.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, nil
}

func (m *memAuditRepo) List(_ context.Context, _, _ int32) ([]*domain.AuditLog, error) {
	return m.entries, nil
}

func (m *memAuditRepo) Create(_ context.Context, a *domain.AuditLog) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, a)
	return nil
}

func TestLogEvent(t *testing.T) {
	repo := &memAuditRepo{}
	l := NewLogger(repo, func(context.Context) string { return "10.0.0.1" })

	l.LogEvent(context.Background(), "user-1", "auth.login", "user", `{"username":"alice"}`)

	if len(repo.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(repo.entries))
	}
	e := repo.entries[0]
	if e.ID == "" || e.UserID != "user-1" || e.Action != "auth.login" || e.IP != "10.0.0.1" {
		t.Errorf("entry = %+v", e)
	}
}

func TestLogEvent_NilExtractor(t *testing.T) {
	repo := &memAuditRepo{}
	l := NewLogger(repo, nil)

	l.LogEvent(context.Background(), "", "auth.login_failure", "user", "")

	if repo.entries[0].IP != "unknown" {
		t.Errorf("ip = %q, want unknown", repo.entries[0].IP)
	}
}

func TestLogEvent_BestEffort(t *testing.T) {
	l := NewLogger(&memAuditRepo{err: errors.New("db down")}, nil)

	// Must not panic or propagate the failure.
	l.LogEvent(context.Background(), "user-1", "auth.logout", "token", "")
}

func TestLogEvent_NilLogger(t *testing.T) {
	var l *Logger
	l.LogEvent(context.Background(), "user-1", "auth.login", "user", "")
}
