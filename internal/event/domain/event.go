package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event is a single application event. Events are immutable after creation:
// they are created by ingestion, moved (never copied) from the hot to the cold
// tier by archival, and deleted from the hot tier only after cold durability
// is confirmed. EventID is the idempotency key and is unique across both tiers.
type Event struct {
	EventID    string
	UserID     string
	EventType  string
	OccurredAt time.Time
	// Properties is an opaque string-keyed map passed through to storage
	// unmodified. No schema is enforced beyond being valid JSON.
	Properties map[string]any
	CreatedAt  time.Time
}

// Validate validates the event for ingestion.
func (e *Event) Validate() error {
	if e.EventID == "" {
		return errors.New("event_id is required")
	}
	// The hot store column is typed UUID; a malformed id must fail here,
	// not inside the insert.
	if _, err := uuid.Parse(e.EventID); err != nil {
		return errors.New("event_id must be a valid UUID")
	}
	if e.UserID == "" {
		return errors.New("user_id is required")
	}
	if e.EventType == "" {
		return errors.New("event_type is required")
	}
	if len(e.EventType) > 100 {
		return errors.New("event_type must be at most 100 characters")
	}
	if e.OccurredAt.IsZero() {
		return errors.New("occurred_at is required")
	}
	return nil
}

// PropertiesJSON returns the properties as a JSON string. Key order is stable
// (encoding/json sorts map keys), so the same map always encodes identically
// in hot and cold storage.
func (e *Event) PropertiesJSON() (string, error) {
	if e.Properties == nil {
		return "{}", nil
	}
	b, err := json.Marshal(e.Properties)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParseProperties decodes a stored JSON string back into a properties map.
// An empty string decodes to an empty map.
func ParseProperties(s string) (map[string]any, error) {
	if s == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}
