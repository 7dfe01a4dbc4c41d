package domain

import (
	"strings"
	"testing"
	"time"
)

func validEvent() *Event {
	return &Event{
		EventID:    "11111111-1111-1111-1111-111111111111",
		UserID:     "u1",
		EventType:  "page_view",
		OccurredAt: time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(e *Event)
		wantErr string
	}{
		{"valid", func(*Event) {}, ""},
		{"missing event id", func(e *Event) { e.EventID = "" }, "event_id"},
		{"malformed event id", func(e *Event) { e.EventID = "not-a-uuid" }, "valid UUID"},
		{"truncated event id", func(e *Event) { e.EventID = "11111111-1111-1111-1111" }, "valid UUID"},
		{"missing user id", func(e *Event) { e.UserID = "" }, "user_id"},
		{"missing type", func(e *Event) { e.EventType = "" }, "event_type"},
		{"type too long", func(e *Event) { e.EventType = strings.Repeat("x", 101) }, "event_type"},
		{"missing occurred_at", func(e *Event) { e.OccurredAt = time.Time{} }, "occurred_at"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := validEvent()
			tc.mutate(e)
			err := e.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestPropertiesJSON(t *testing.T) {
	e := validEvent()
	got, err := e.PropertiesJSON()
	if err != nil {
		t.Fatalf("PropertiesJSON: %v", err)
	}
	if got != "{}" {
		t.Errorf("nil properties = %q, want {}", got)
	}

	e.Properties = map[string]any{"path": "/home", "ms": 42}
	got, err = e.PropertiesJSON()
	if err != nil {
		t.Fatalf("PropertiesJSON: %v", err)
	}
	// encoding/json sorts map keys, so the output is deterministic.
	if got != `{"ms":42,"path":"/home"}` {
		t.Errorf("properties = %q", got)
	}
}

func TestParseProperties(t *testing.T) {
	m, err := ParseProperties("")
	if err != nil || m == nil || len(m) != 0 {
		t.Fatalf("empty string = %v, %v", m, err)
	}

	m, err = ParseProperties(`{"path":"/home"}`)
	if err != nil {
		t.Fatalf("ParseProperties: %v", err)
	}
	if m["path"] != "/home" {
		t.Errorf("parsed = %v", m)
	}

	if _, err := ParseProperties("not json"); err == nil {
		t.Error("want error for invalid JSON")
	}

	m, err = ParseProperties("null")
	if err != nil || m == nil {
		t.Errorf("null = %v, %v, want empty map", m, err)
	}
}
